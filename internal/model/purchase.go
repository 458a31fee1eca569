package model

import (
	"time"
)

// Purchase 课程购买记录，(user_id, course_id) 唯一，是课程访问权限的唯一依据
type Purchase struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_purchase_user_course" json:"user_id"`
	CourseID  int64     `gorm:"not null;uniqueIndex:idx_purchase_user_course;index" json:"course_id"`
	PricePaid int64     `gorm:"not null;default:0" json:"price_paid"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Purchase) TableName() string {
	return "purchases"
}
