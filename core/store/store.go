package store

import coreerrors "github.com/dnslin/tokenretry/core/errors"

// ErrNotFound 表示存储中尚无数据。
var ErrNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "store: 未找到会话")

// SessionStore 抽象会话存储，由业务方约定具体 Session 结构体。
// 实现需保证单次 Save/Load 原子，未保存过时 LoadSession 返回 ErrNotFound。
type SessionStore[T any] interface {
	SaveSession(session T) error
	LoadSession() (T, error)
	ClearSession() error
}
