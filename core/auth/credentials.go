package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/dnslin/tokenretry/core/store"
)

// CredentialStore 持有当前访问凭证与账号信息，本身不做任何协调。
// Get/Set 需各自原子，协调器保证不会并发写入。
type CredentialStore interface {
	GetCredential() string
	SetCredential(credential string) error
	GetIdentity() Identity
}

// SessionCredentials 基于 store.SessionStore 实现 CredentialStore。
// 写入凭证时顺带从 JWT 中解析过期时间。
type SessionCredentials struct {
	mu    sync.Mutex
	store store.SessionStore[Session]
	now   func() time.Time
}

// NewSessionCredentials 创建凭证存储适配器。
func NewSessionCredentials(s store.SessionStore[Session]) (*SessionCredentials, error) {
	if s == nil {
		return nil, ErrSessionStoreNil
	}
	return &SessionCredentials{store: s, now: time.Now}, nil
}

// GetCredential 返回当前凭证，读取失败时视为无凭证。
func (c *SessionCredentials) GetCredential() string {
	session, err := c.store.LoadSession()
	if err != nil {
		return ""
	}
	return session.AccessToken
}

// SetCredential 写入新凭证，保留账号信息。
func (c *SessionCredentials) SetCredential(credential string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, err := c.load()
	if err != nil {
		return err
	}
	session.AccessToken = credential
	session.ExpiresAt = time.Time{}
	if exp, ok := TokenExpiry(credential); ok {
		session.ExpiresAt = exp
	}
	return c.store.SaveSession(session)
}

// GetIdentity 返回登录所需的账号信息。
func (c *SessionCredentials) GetIdentity() Identity {
	session, err := c.store.LoadSession()
	if err != nil {
		return Identity{}
	}
	return session.Identity
}

// SetIdentity 登录成功或切换账号时写入账号信息，不改动现有凭证。
func (c *SessionCredentials) SetIdentity(identity Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, err := c.load()
	if err != nil {
		return err
	}
	session.Identity = identity
	return c.store.SaveSession(session)
}

// Session 返回完整会话快照。
func (c *SessionCredentials) Session() (*Session, error) {
	session, err := c.store.LoadSession()
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout 清空凭证与账号信息。
func (c *SessionCredentials) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ClearSession()
}

func (c *SessionCredentials) load() (Session, error) {
	session, err := c.store.LoadSession()
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}
	return session, nil
}
