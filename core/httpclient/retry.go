package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy 定义重试策略。
type RetryPolicy interface {
	ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error)
}

// AuthRetrier 决定认证失败的请求能否在刷新凭证后重发。
// 实现可以阻塞等待刷新结果，但需响应 ctx 取消。
type AuthRetrier interface {
	RetryAuth(ctx context.Context, req *http.Request, status int, attempt int) bool
}

// RetryConfig 配置指数退避重试。
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Auth       AuthRetrier
	AuthCodes  []string
	Logger     Logger
}

// ExponentialBackoffRetry 实现指数退避重试。
type ExponentialBackoffRetry struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	auth       AuthRetrier
	authCodes  map[string]struct{}
	logger     Logger
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		AuthCodes: []string{
			"InvalidAccessToken",
			"AccessTokenExpired",
		},
	}
}

// NewExponentialBackoffRetry 创建重试策略。
func NewExponentialBackoffRetry(cfg RetryConfig) *ExponentialBackoffRetry {
	authCodes := make(map[string]struct{})
	for _, code := range cfg.AuthCodes {
		authCodes[code] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &ExponentialBackoffRetry{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		auth:       cfg.Auth,
		authCodes:  authCodes,
		logger:     logger,
	}
}

// ShouldRetry 根据错误类型、状态码决定是否重试。
// 认证错误交给 AuthRetrier 判定，允许时立即重发，不再退避。
func (r *ExponentialBackoffRetry) ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error) {
	if r == nil {
		return false, 0, nil
	}
	if attempt >= r.maxRetries {
		return false, 0, nil
	}
	delay := r.backoff(attempt)

	if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		r.logger.Debugf("服务端错误，第 %d 次重试", attempt+1)
		return true, delay, nil
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		r.logger.Debugf("网络错误，第 %d 次重试", attempt+1)
		return true, delay, nil
	}

	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return false, 0, nil
	}

	var ec *ErrCode
	if errors.As(err, &ec) {
		if ec.Status >= http.StatusInternalServerError {
			r.logger.Debugf("服务端错误(code=%d)，第 %d 次重试", ec.Status, attempt+1)
			return true, delay, nil
		}
		if status, ok := r.authStatus(ec); ok {
			if r.auth == nil || req == nil {
				return false, 0, nil
			}
			if !r.auth.RetryAuth(req.Context(), req, status, attempt) {
				r.logger.Debugf("认证错误(status=%d)，不再重试", status)
				return false, 0, nil
			}
			r.logger.Debugf("认证错误，刷新后重试，第 %d 次", attempt+1)
			return true, 0, nil
		}
		return false, 0, nil
	}

	return false, 0, nil
}

// authStatus 返回认证错误对应的 HTTP 状态码，业务码命中 AuthCodes 时视为 401。
func (r *ExponentialBackoffRetry) authStatus(ec *ErrCode) (int, bool) {
	if ec == nil {
		return 0, false
	}
	if ec.Code != "" {
		if _, ok := r.authCodes[ec.Code]; ok {
			return http.StatusUnauthorized, true
		}
	}
	if ec.Status == http.StatusUnauthorized || ec.Status == http.StatusForbidden {
		return ec.Status, true
	}
	return 0, false
}

func (r *ExponentialBackoffRetry) backoff(attempt int) time.Duration {
	base := r.baseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := r.maxDelay
	if max <= 0 {
		max = 2 * time.Second
	}
	delay := base << attempt
	if delay > max {
		delay = max
	}
	return delay
}
