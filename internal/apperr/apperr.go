// Package apperr 定义业务层与 HTTP 层共用的错误分类
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别，决定对外的 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindInsufficientBalance
	KindNotFound
	KindForbidden
	KindGateway
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindGateway:
		return "gateway"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

// Error 业务错误。Code 为对外稳定的错误名，Message 为可读描述
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New 创建哨兵错误
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 使 Wrap 产生的副本仍能与哨兵错误 errors.Is 匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code && e.Message == t.Message
}

// Wrap 为哨兵错误附加底层原因
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     cause,
	}
}

// KindOf 返回错误链中第一个 *Error 的类别，没有则为 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrUserNotFound        = New(KindNotFound, "UserNotFound", "user not found")
	ErrCourseNotFound      = New(KindNotFound, "CourseNotFound", "course not found")
	ErrAlreadyPurchased    = New(KindConflict, "AlreadyPurchased", "course already purchased")
	ErrInsufficientBalance = New(KindInsufficientBalance, "InsufficientBalance", "insufficient balance")

	ErrInvalidAmount   = New(KindValidation, "InvalidAmount", "top-up amount is invalid")
	ErrTopUpNotFound   = New(KindNotFound, "NotFound", "transaction not found")
	ErrInvoiceNotFound = New(KindNotFound, "NotFound", "invoice not found at payment gateway")
	ErrGateway         = New(KindGateway, "GatewayError", "payment gateway request failed")

	ErrInvalidRating   = New(KindValidation, "InvalidRating", "rating must be between 1 and 5")
	ErrNotPurchased    = New(KindForbidden, "NotPurchased", "course must be purchased before reviewing")
	ErrAlreadyReviewed = New(KindConflict, "AlreadyReviewed", "course already reviewed")
	ErrReviewNotFound  = New(KindNotFound, "NotFound", "review not found")
	ErrUnauthorized    = New(KindForbidden, "Unauthorized", "not allowed to modify this review")

	ErrInvariantViolation = New(KindInvariant, "InvariantViolation", "internal invariant violated")
)
