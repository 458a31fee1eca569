package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course 课程表
// rating / review_count 由评价集合推导，只能由评分聚合器写入
type Course struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Price       int64           `gorm:"not null;default:0" json:"price"`        // 价格，0 为免费课程
	JoinedCount int64           `gorm:"not null;default:0" json:"joined_count"` // 购买人数，只增不减
	Rating      decimal.Decimal `gorm:"type:decimal(2,1);not null;default:0" json:"rating"`
	ReviewCount int64           `gorm:"not null;default:0" json:"review_count"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsFree() bool {
	return c.Price <= 0
}
