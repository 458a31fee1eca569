package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrStatusConflict = errors.New("状态已被其他请求修改")
	ErrDuplicateEntry = errors.New("流水已存在")
)

// conn 优先使用调用方传入的事务
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
