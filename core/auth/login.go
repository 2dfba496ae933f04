package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/httpclient"
)

// DefaultLoginURL 默认登录地址。
const DefaultLoginURL = "https://api.example.com/v1/login"

var (
	// ErrMissingCredentials 标记缺少邮箱或密码。
	ErrMissingCredentials = coreerrors.New(coreerrors.ErrCodeInvalidArgument, "auth: 缺少登录凭证")
	// ErrEmptyCredential 登录成功但未返回凭证。
	ErrEmptyCredential = coreerrors.New(coreerrors.ErrCodeInvalidState, "auth: 登录响应缺少 accessToken")
)

// LoginClient 负责用账号信息换取访问凭证。
type LoginClient struct {
	client   *httpclient.Client
	logger   httpclient.Logger
	loginURL string
	now      func() time.Time
}

// LoginOption 自定义登录客户端。
type LoginOption func(*LoginClient)

// WithLoginLogger 注入日志。
func WithLoginLogger(logger httpclient.Logger) LoginOption {
	return func(l *LoginClient) {
		l.logger = logger
	}
}

// WithLoginURL 替换默认登录地址。
func WithLoginURL(url string) LoginOption {
	return func(l *LoginClient) {
		if url != "" {
			l.loginURL = url
		}
	}
}

// WithLoginNow 替换时间来源，便于测试。
func WithLoginNow(now func() time.Time) LoginOption {
	return func(l *LoginClient) {
		l.now = now
	}
}

// NewLoginClient 创建登录客户端。
func NewLoginClient(client *httpclient.Client, opts ...LoginOption) *LoginClient {
	if client == nil {
		client = httpclient.NewClient()
	}
	l := &LoginClient{
		client:   client,
		logger:   httpclient.NopLogger{},
		loginURL: DefaultLoginURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.logger == nil {
		l.logger = httpclient.NopLogger{}
	}
	return l
}

// URL 返回登录地址，协调器据此避免对登录请求本身触发刷新。
func (l *LoginClient) URL() string {
	return l.loginURL
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	MembershipID string `json:"membershipId,omitempty"`
}

// LoginResponse 登录接口返回结构。
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
	Code        string `json:"code,omitempty"`
	Msg         string `json:"message,omitempty"`
}

// IsSuccess 实现 httpclient.OkRsp。
func (r *LoginResponse) IsSuccess() bool {
	if r == nil {
		return true
	}
	code := strings.ToUpper(r.Code)
	return code == "" || code == "0" || code == "SUCCESS"
}

func (r *LoginResponse) Error() string {
	return r.Code + ": " + r.Msg
}

// Message 返回服务端消息。
func (r *LoginResponse) Message() string {
	return r.Msg
}

// Login 发送登录请求并返回新会话。
func (l *LoginClient) Login(ctx context.Context, identity Identity) (*Session, error) {
	if !identity.Complete() {
		return nil, ErrMissingCredentials
	}
	body, err := json.Marshal(loginRequest{
		Email:        identity.Email,
		Password:     identity.Password,
		MembershipID: identity.MembershipID,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.loginURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	var payload LoginResponse
	if err := l.client.Do(req, &payload); err != nil {
		l.logger.Errorf("登录请求失败: %v", err)
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, ErrEmptyCredential
	}
	session := &Session{AccessToken: payload.AccessToken, Identity: identity}
	if payload.ExpiresIn > 0 {
		session.ExpiresAt = l.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	} else if exp, ok := TokenExpiry(payload.AccessToken); ok {
		session.ExpiresAt = exp
	}
	return session, nil
}
