package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户表
// 由外部用户服务创建，本系统只读写 balance 字段。
// JSON 只输出公开资料，余额通过余额接口单独查询。
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Email     string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null;default:user" json:"role,omitempty"`
	Balance   int64     `gorm:"not null;default:0" json:"-"` // 钱包余额（整数货币单位），不允许为负
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
