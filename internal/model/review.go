package model

import (
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review 课程评价，每个用户对每门课程最多一条
type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_review_user_course" json:"user_id"`
	CourseID  int64     `gorm:"not null;uniqueIndex:idx_review_user_course;index" json:"course_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   *string   `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 列表接口只加载 id、name
}

func (Review) TableName() string {
	return "reviews"
}

func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
