package auth

import (
	"context"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
)

// ErrInvokerNil 未配置刷新调用方时返回。
var ErrInvokerNil = coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: 未配置刷新器")

// RefreshInvoker 用账号信息换取新凭证。协调器保证不会并发调用。
type RefreshInvoker interface {
	Refresh(ctx context.Context, identity Identity) (string, error)
}

// RefreshFunc 把函数适配为 RefreshInvoker。
type RefreshFunc func(ctx context.Context, identity Identity) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context, identity Identity) (string, error) {
	return f(ctx, identity)
}

// LoginRefresher 通过重新登录刷新凭证。
type LoginRefresher struct {
	login *LoginClient
}

// NewLoginRefresher 创建基于登录接口的刷新器。
func NewLoginRefresher(login *LoginClient) *LoginRefresher {
	return &LoginRefresher{login: login}
}

// Refresh 实现 RefreshInvoker。
func (r *LoginRefresher) Refresh(ctx context.Context, identity Identity) (string, error) {
	if r == nil || r.login == nil {
		return "", ErrInvokerNil
	}
	session, err := r.login.Login(ctx, identity)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}
