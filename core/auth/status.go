package auth

// SessionStatus 表示用户登录状态。
type SessionStatus int

const (
	LoggedOut SessionStatus = iota
	LoggedIn
)

func (s SessionStatus) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

// StatusProvider 提供同步读取的登录状态。
type StatusProvider interface {
	Status() SessionStatus
}

// StatusFunc 把函数适配为 StatusProvider。
type StatusFunc func() SessionStatus

func (f StatusFunc) Status() SessionStatus {
	if f == nil {
		return LoggedOut
	}
	return f()
}

// StoreStatus 以存储中是否有完整账号信息判断登录状态。
type StoreStatus struct {
	Store CredentialStore
}

func (s StoreStatus) Status() SessionStatus {
	if s.Store == nil {
		return LoggedOut
	}
	if s.Store.GetIdentity().Complete() {
		return LoggedIn
	}
	return LoggedOut
}
