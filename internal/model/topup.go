package model

import (
	"time"
)

const (
	TopUpStatusPending = "PENDING"
	TopUpStatusPaid    = "PAID"
	TopUpStatusSettled = "SETTLED"
	TopUpStatusExpired = "EXPIRED"
)

// ValidStatusTransitions 充值单状态机，终态没有出边
var ValidStatusTransitions = map[string][]string{
	TopUpStatusPending: {TopUpStatusPaid, TopUpStatusSettled, TopUpStatusExpired},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus PAID / SETTLED / EXPIRED 均为终态
func IsTerminalStatus(status string) bool {
	switch status {
	case TopUpStatusPaid, TopUpStatusSettled, TopUpStatusExpired:
		return true
	}
	return false
}

// IsCreditStatus 网关回报该状态时需要给余额入账
func IsCreditStatus(status string) bool {
	return status == TopUpStatusPaid || status == TopUpStatusSettled
}

// TopUp 余额充值单，对应网关侧的一张发票
type TopUp struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"index;not null" json:"user_id"`
	ExternalID string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_id"` // 发给网关的业务单号
	Amount     int64      `gorm:"not null" json:"amount"`
	Status     string     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentURL string     `gorm:"type:varchar(512)" json:"payment_url"`
	PaidAt     *time.Time `json:"paid_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TopUp) TableName() string {
	return "topups"
}
