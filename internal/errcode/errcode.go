package errcode

import (
	"errors"
	"fmt"
)

// Code 是业务层返回给调用方的错误分类。
type Code string

// 错误分类约定：
// - Unauthenticated：无法解析调用者身份，或身份存在但没有应用账号（两者对调用方不做区分）
// - Unauthorized：调用者身份有效，但不是目标记录的所有者
// - NotFound：引用的记录不存在
// - UserAlreadyExists：同一外部身份重复 onboarding
// - Invalid：输入被拒绝
// - Misc：外部依赖/未知错误
const (
	Unauthenticated   Code = "Unauthenticated"
	Unauthorized      Code = "Unauthorized"
	NotFound          Code = "NotFound"
	UserAlreadyExists Code = "UserAlreadyExists"
	Invalid           Code = "Invalid"
	Misc              Code = "Misc"
)

// Error 携带分类码与可展示给调用方的消息。
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, errcode.New(code, "")) 按分类码比较。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf 返回 err 的分类码；未分类的错误统一视为 Misc。
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Misc
}

// MessageOf 返回可安全回显的消息，未分类错误不泄露内部细节。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
