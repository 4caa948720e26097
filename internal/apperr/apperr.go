package apperr

import (
	"errors"
	"fmt"
)

// Kind 区分业务错误类别，HTTP 层据此映射状态码。
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindCrossOwner
	KindDangling
	KindNotFound
	KindExternal
)

// Error carries a kind alongside a client-safe message. Wrapped causes stay
// internal; only Msg is ever echoed to the client.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation 表示客户端可修正的输入错误。
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

// Conflict 表示引用或位置冲突。
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

// CrossOwner marks an attempt to bind rows owned by different users.
func CrossOwner(msg string) *Error { return &Error{Kind: KindCrossOwner, Msg: msg} }

// Dangling marks a stale library reference discovered at resolve time.
func Dangling(msg string) *Error { return &Error{Kind: KindDangling, Msg: msg} }

// NotFound marks a missing resource.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// External wraps a collaborator failure behind a generic message so provider
// detail never leaks to clients.
func External(msg string, err error) *Error { return &Error{Kind: KindExternal, Msg: msg, Err: err} }

// KindOf 返回错误的业务类别；非业务错误返回 0。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
