package service

import (
	"fmt"

	"coursepay/internal/apperr"
)

// wrapTxError 业务错误原样返回，其余错误附加上下文
func wrapTxError(msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
