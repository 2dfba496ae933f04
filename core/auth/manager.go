package auth

import (
	"context"
	"net/http"
	"sort"
	"sync"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/httpclient"
)

var (
	// ErrAccountNotFound 在账号不存在或未选择时返回。
	ErrAccountNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "auth: 未找到账号")
	// ErrAccountIDEmpty 在新增账号时未提供 ID 返回。
	ErrAccountIDEmpty = coreerrors.New(coreerrors.ErrCodeInvalidArgument, "auth: 账号 ID 不能为空")
)

// AccountSession 记录账号关联的凭证存储、协调器与元信息。
type AccountSession struct {
	AccountID   string
	DisplayName string
	Credentials CredentialStore
	Coordinator *Coordinator
}

// AuthManager 管理多个账号，每个账号各自拥有一个 Coordinator，刷新互不影响。
// 其 Middleware 与 RetryAuth 始终作用于当前账号。
type AuthManager struct {
	mu       sync.RWMutex
	accounts map[string]*AccountSession
	current  string
	invoker  RefreshInvoker
	loginURL string
	opts     []CoordinatorOption
}

// NewAuthManager 创建 AuthManager，所有账号共用同一刷新器与协调器选项。
func NewAuthManager(invoker RefreshInvoker, loginURL string, opts ...CoordinatorOption) *AuthManager {
	return &AuthManager{
		accounts: make(map[string]*AccountSession),
		invoker:  invoker,
		loginURL: loginURL,
		opts:     opts,
	}
}

// AddAccount 注册一个账号，status 为 nil 时按存储中的账号信息判断登录状态。
// 首个注册的账号成为当前账号。
func (m *AuthManager) AddAccount(accountID, displayName string, creds CredentialStore, status StatusProvider) error {
	if accountID == "" {
		return ErrAccountIDEmpty
	}
	if creds == nil {
		return ErrSessionStoreNil
	}
	if status == nil {
		status = StoreStatus{Store: creds}
	}
	coord, err := NewCoordinator(creds, status, m.invoker, m.loginURL, m.opts...)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountID] = &AccountSession{
		AccountID:   accountID,
		DisplayName: displayName,
		Credentials: creds,
		Coordinator: coord,
	}
	if m.current == "" {
		m.current = accountID
	}
	return nil
}

// RemoveAccount 删除账号，若为当前账号则一并清空 current。
func (m *AuthManager) RemoveAccount(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, accountID)
	if m.current == accountID {
		m.current = ""
	}
}

// SetCurrentAccount 切换当前账号。
func (m *AuthManager) SetCurrentAccount(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return ErrAccountNotFound
	}
	m.current = accountID
	return nil
}

// ListAccounts 返回按 ID 排序的账号列表（浅拷贝）。
func (m *AuthManager) ListAccounts() []AccountSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]AccountSession, 0, len(m.accounts))
	for _, acc := range m.accounts {
		result = append(result, *acc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result
}

// Account 返回指定账号，accountID 为空时返回当前账号。
func (m *AuthManager) Account(accountID string) (*AccountSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := accountID
	if id == "" {
		id = m.current
	}
	if id == "" {
		return nil, ErrAccountNotFound
	}
	acc := m.accounts[id]
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Middleware 为请求写入当前账号的凭证，没有当前账号时原样放行。
func (m *AuthManager) Middleware() httpclient.Middleware {
	return func(req *http.Request) error {
		acc, err := m.Account("")
		if err != nil {
			return nil
		}
		return acc.Coordinator.Middleware()(req)
	}
}

// RetryAuth 实现 httpclient.AuthRetrier，交给当前账号的协调器判定。
func (m *AuthManager) RetryAuth(ctx context.Context, req *http.Request, status int, attempt int) bool {
	acc, err := m.Account("")
	if err != nil {
		return false
	}
	return acc.Coordinator.RetryAuth(ctx, req, status, attempt)
}
