// Package apperr 定义对外暴露的错误分类及其 HTTP 状态码映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindFatal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindStateConflict
	KindPreconditionFailed
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindStateConflict:
		return "StateConflict"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindUpstream:
		return "UpstreamUnavailable"
	default:
		return "Fatal"
	}
}

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类别同消息视为相同，便于哨兵错误匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, nil, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newError(KindUnauthenticated, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newError(KindForbidden, nil, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func StateConflict(format string, args ...interface{}) *Error {
	return newError(KindStateConflict, nil, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return newError(KindPreconditionFailed, nil, format, args...)
}

// Upstream 链上或网络 I/O 失败，调用方可重试
func Upstream(err error, format string, args ...interface{}) *Error {
	return newError(KindUpstream, err, format, args...)
}

// Fatal 内部错误
func Fatal(err error, format string, args ...interface{}) *Error {
	return newError(KindFatal, err, format, args...)
}

// 常用哨兵错误
var (
	ErrNetworkNotConfigured = Validation("bounty has no configured network")
	ErrNoSession            = Unauthenticated("no GitHub identity bound to session")
	ErrNotSponsor           = Forbidden("only the bounty sponsor may perform this action")
	ErrNotAdmin             = Forbidden("admin access required")
	ErrBountyNotFound       = NotFound("bounty not found")
	ErrNonceMismatch        = Unauthenticated("nonce missing or does not match session")
	ErrNonceConsumed        = Unauthenticated("nonce already used or expired")
	ErrSignatureMismatch    = Unauthenticated("signature does not match address")
)

// KindOf 获取错误类别，非 *Error 视为 Fatal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsKind 判断错误类别
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 类别对应的 HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindPreconditionFailed:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以展示给调用方的消息，Fatal 不暴露内部细节
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindFatal {
			return "internal error"
		}
		return e.Message
	}
	return "internal error"
}
