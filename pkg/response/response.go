package response

import (
	"context"
	"errors"
	"net/http"

	"coursepay/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeCourseNotFound      = 1001
	CodeAlreadyPurchased    = 1002
	CodeInsufficientBalance = 1003
	CodeInvalidAmount       = 1004
	CodeGatewayError        = 1005
	CodeNotPurchased        = 1006
	CodeAlreadyReviewed     = 1007
	CodeInvalidRating       = 1008
	CodeUnauthorized        = 1009
	CodeUserNotFound        = 1010
)

// 业务错误名到数字码
var businessCodes = map[string]int{
	apperr.ErrCourseNotFound.Code:      CodeCourseNotFound,
	apperr.ErrAlreadyPurchased.Code:    CodeAlreadyPurchased,
	apperr.ErrInsufficientBalance.Code: CodeInsufficientBalance,
	apperr.ErrInvalidAmount.Code:       CodeInvalidAmount,
	apperr.ErrGateway.Code:             CodeGatewayError,
	apperr.ErrNotPurchased.Code:        CodeNotPurchased,
	apperr.ErrAlreadyReviewed.Code:     CodeAlreadyReviewed,
	apperr.ErrInvalidRating.Code:       CodeInvalidRating,
	apperr.ErrUnauthorized.Code:        CodeUnauthorized,
	apperr.ErrUserNotFound.Code:        CodeUserNotFound,
	apperr.ErrTopUpNotFound.Code:       CodeNotFound,
}

type Response struct {
	Code    int         `json:"code"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeServerError, "服务器内部错误")
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInsufficientBalance:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError 按错误类别输出响应。内部错误与不变量破坏不透出细节。
// 返回 true 表示为服务端错误，调用方需要记录日志。
func FromError(c *gin.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		Error(c, 499, CodeServerError, "请求已取消")
		return false
	}

	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal || e.Kind == apperr.KindInvariant {
		ServerError(c)
		return true
	}

	code, ok := businessCodes[e.Code]
	if !ok {
		code = CodeBusinessError
		if e.Kind == apperr.KindNotFound {
			code = CodeNotFound
		}
	}
	c.JSON(HTTPStatus(e.Kind), Response{
		Code:    code,
		Error:   e.Code,
		Message: e.Message,
	})
	return e.Kind == apperr.KindGateway
}
