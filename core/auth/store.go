package auth

import (
	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/store"
)

var (
	// ErrSessionNotFound 用于标记存储中不存在会话。
	ErrSessionNotFound = store.ErrNotFound
	// ErrSessionStoreNil 在未注入存储时返回。
	ErrSessionStoreNil = coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: SessionStore 未设置")
)
