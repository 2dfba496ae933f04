package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity 记录换取凭证所需的账号信息。
type Identity struct {
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	MembershipID string `json:"membershipId,omitempty"`
}

// Complete 判断账号信息是否足以发起登录。
func (i Identity) Complete() bool {
	return i.Email != "" && i.Password != ""
}

// Session 记录当前的访问凭证与账号信息。
type Session struct {
	AccessToken string    `json:"accessToken,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	Identity    Identity  `json:"identity"`
}

// GetAccessToken 返回当前凭证，nil 安全。
func (s *Session) GetAccessToken() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// Expired 判断会话是否过期，未知过期时间视为未过期。
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Clone 返回会话的浅拷贝，避免直接暴露内部指针。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// TokenExpiry 尝试从 JWT 形式的凭证中读取 exp，不校验签名。
// 非 JWT 或不含 exp 时返回 false。
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
