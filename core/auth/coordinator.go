package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/httpclient"
)

const (
	// DefaultRetryLimit 单个请求因认证失败最多重试的次数。
	DefaultRetryLimit = 2
	// DefaultRefreshTimeout 单次刷新的最长耗时，超时按失败处理。
	DefaultRefreshTimeout = 30 * time.Second
	// DefaultCredentialHeader 凭证请求头。
	DefaultCredentialHeader = "Access-Token"

	tracerName = "github.com/dnslin/tokenretry/core/auth"
)

var (
	// ErrRefreshTimeout 刷新超过 RefreshTimeout 未返回。
	ErrRefreshTimeout = coreerrors.New(coreerrors.ErrCodeRefreshFailed, "auth: 刷新凭证超时")
	// ErrRefreshPanic 刷新器发生 panic。
	ErrRefreshPanic = coreerrors.New(coreerrors.ErrCodeRefreshFailed, "auth: 刷新器异常退出")
)

// RetryDecision 是认证失败请求的最终判定。
type RetryDecision int

const (
	DoNotRetry RetryDecision = iota
	Retry
)

func (d RetryDecision) String() string {
	if d == Retry {
		return "retry"
	}
	return "do_not_retry"
}

// RefreshState 刷新状态机。
type RefreshState int

const (
	Idle RefreshState = iota
	Refreshing
)

func (s RefreshState) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// FailedRequest 描述一次失败的请求。
type FailedRequest struct {
	URL        string
	StatusCode int
	// Attempt 是该请求此前已重试的次数。
	Attempt int
}

// RetryCallback 接收判定结果，每次 DecideRetry 恰好调用一次。
// 回调可能在协调器锁内执行，不得阻塞，也不得回调协调器。
type RetryCallback func(RetryDecision)

// CredentialSetter 把凭证写入请求。
type CredentialSetter func(credential string)

// Stats 记录刷新统计。
type Stats struct {
	Cycles    int
	Succeeded int
	Failed    int
}

// Coordinator 保证并发的认证失败只触发一次刷新，并把结果按 FIFO 分发给所有等待者。
type Coordinator struct {
	mu      sync.Mutex
	state   RefreshState
	waiters []RetryCallback
	stats   Stats

	store   CredentialStore
	status  StatusProvider
	invoker RefreshInvoker

	loginURL   string
	retryLimit int
	timeout    time.Duration
	header     string
	prefix     string
	logger     httpclient.Logger
	tracer     trace.Tracer
}

// CoordinatorOption 自定义 Coordinator。
type CoordinatorOption func(*Coordinator)

// WithRetryLimit 替换单个请求的认证重试上限。
func WithRetryLimit(limit int) CoordinatorOption {
	return func(c *Coordinator) {
		if limit > 0 {
			c.retryLimit = limit
		}
	}
}

// WithRefreshTimeout 替换刷新超时。
func WithRefreshTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithCredentialHeader 设置 Middleware 使用的请求头与值前缀，例如 ("Authorization", "Bearer ")。
func WithCredentialHeader(name, prefix string) CoordinatorOption {
	return func(c *Coordinator) {
		if name != "" {
			c.header = name
		}
		c.prefix = prefix
	}
}

// WithCoordinatorLogger 注入日志。
func WithCoordinatorLogger(logger httpclient.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTracer 替换刷新链路使用的 tracer。
func WithTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// NewCoordinator 创建协调器，loginURL 为刷新所用的登录地址。
func NewCoordinator(store CredentialStore, status StatusProvider, invoker RefreshInvoker, loginURL string, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: 未配置 CredentialStore")
	}
	if status == nil {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: 未配置 StatusProvider")
	}
	if invoker == nil {
		return nil, ErrInvokerNil
	}
	c := &Coordinator{
		store:      store,
		status:     status,
		invoker:    invoker,
		loginURL:   loginURL,
		retryLimit: DefaultRetryLimit,
		timeout:    DefaultRefreshTimeout,
		header:     DefaultCredentialHeader,
		logger:     httpclient.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = httpclient.NopLogger{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

// DecideRetry 判定失败请求是否应在刷新凭证后重试，结果通过 resolve 回调返回。
// 满足条件的请求进入等待队列，首个等待者触发刷新；本方法不会阻塞在网络请求上。
func (c *Coordinator) DecideRetry(ctx context.Context, req FailedRequest, resolve RetryCallback) {
	if resolve == nil {
		return
	}
	c.mu.Lock()
	if !c.retryable(req) {
		c.mu.Unlock()
		resolve(DoNotRetry)
		return
	}
	c.waiters = append(c.waiters, resolve)
	if c.state == Refreshing {
		c.mu.Unlock()
		return
	}
	c.state = Refreshing
	c.stats.Cycles++
	identity := c.store.GetIdentity()
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	go c.refresh(context.WithoutCancel(ctx), identity)
}

// Decide 是 DecideRetry 的 channel 形式，返回的 channel 恰好收到一个结果。
func (c *Coordinator) Decide(ctx context.Context, req FailedRequest) <-chan RetryDecision {
	ch := make(chan RetryDecision, 1)
	c.DecideRetry(ctx, req, func(d RetryDecision) {
		ch <- d
	})
	return ch
}

// RetryAuth 实现 httpclient.AuthRetrier，阻塞等待刷新结果或 ctx 取消。
func (c *Coordinator) RetryAuth(ctx context.Context, req *http.Request, status int, attempt int) bool {
	failed := FailedRequest{StatusCode: status, Attempt: attempt}
	if req != nil && req.URL != nil {
		failed.URL = req.URL.String()
	}
	select {
	case d := <-c.Decide(ctx, failed):
		return d == Retry
	case <-ctx.Done():
		return false
	}
}

// AdaptRequest 存在凭证时调用 attach 写入请求，否则原样放行。
func (c *Coordinator) AdaptRequest(req *http.Request, attach CredentialSetter) *http.Request {
	credential := c.store.GetCredential()
	if credential == "" || attach == nil {
		return req
	}
	attach(credential)
	return req
}

// Middleware 返回为请求写入凭证头的 httpclient 中间件。
func (c *Coordinator) Middleware() httpclient.Middleware {
	return func(req *http.Request) error {
		c.AdaptRequest(req, func(credential string) {
			req.Header.Set(c.header, c.prefix+credential)
		})
		return nil
	}
}

// State 返回当前刷新状态。
func (c *Coordinator) State() RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending 返回等待刷新结果的请求数。
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Stats 返回刷新统计快照。
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// retryable 需持锁调用。
func (c *Coordinator) retryable(req FailedRequest) bool {
	if req.URL == "" || req.StatusCode == 0 {
		return false
	}
	if req.Attempt >= c.retryLimit {
		return false
	}
	if c.status.Status() != LoggedIn {
		return false
	}
	if sameEndpoint(req.URL, c.loginURL) {
		return false
	}
	return req.StatusCode == http.StatusUnauthorized
}

type refreshResult struct {
	credential string
	err        error
}

func (c *Coordinator) refresh(ctx context.Context, identity Identity) {
	cycle := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "auth.refresh", trace.WithAttributes(
		attribute.String("auth.refresh.cycle", cycle),
	))
	defer span.End()

	results := make(chan refreshResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- refreshResult{err: coreerrors.Wrap(coreerrors.ErrCodeRefreshFailed, ErrRefreshPanic.Message, fmt.Errorf("%v", r))}
			}
		}()
		credential, err := c.invoker.Refresh(ctx, identity)
		results <- refreshResult{credential: credential, err: err}
	}()

	var res refreshResult
	select {
	case res = <-results:
	case <-ctx.Done():
		res = refreshResult{err: coreerrors.Wrap(coreerrors.ErrCodeRefreshFailed, ErrRefreshTimeout.Message, ctx.Err())}
	}
	if res.err == nil && res.credential == "" {
		res.err = ErrEmptyCredential
	}

	released := c.complete(cycle, res)
	span.SetAttributes(attribute.Int("auth.refresh.waiters", released))
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
}

// complete 回到 Idle，并在同一临界区内写入凭证、按 FIFO 通知全部等待者。
func (c *Coordinator) complete(cycle string, res refreshResult) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Idle
	waiters := c.waiters
	c.waiters = nil

	decision := DoNotRetry
	if res.err == nil {
		if err := c.store.SetCredential(res.credential); err != nil {
			res.err = err
		} else {
			decision = Retry
		}
	}
	if res.err != nil {
		c.stats.Failed++
		c.logger.Errorf("凭证刷新失败(cycle=%s)，拒绝 %d 个请求: %v", cycle, len(waiters), res.err)
	} else {
		c.stats.Succeeded++
		c.logger.Debugf("凭证刷新成功(cycle=%s)，重试 %d 个请求", cycle, len(waiters))
	}
	for _, resolve := range waiters {
		resolve(decision)
	}
	return len(waiters)
}

// sameEndpoint 忽略 query、fragment 与末尾斜杠比较两个地址。
func sameEndpoint(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}
