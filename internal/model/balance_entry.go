package model

import (
	"time"
)

const (
	EntryTypePurchase = "PURCHASE" // 购课扣款
	EntryTypeTopUp    = "TOPUP"    // 充值入账
)

// BalanceEntry 余额流水表
// 只追加不修改，与余额变动在同一事务内写入。
// (type, reference) 唯一，同一充值单最多入账一次。
type BalanceEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Type          string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_entry_type_reference" json:"type"`
	Reference     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_entry_type_reference" json:"reference"` // 购课为 purchase id，充值为 external_id
	Amount        int64     `gorm:"not null" json:"amount"`                                                           // 正数入账，负数出账
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceEntry) TableName() string {
	return "balance_entries"
}
