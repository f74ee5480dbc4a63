package model

import "time"

// Address 用户充值地址
// 同一用户每个币种一个地址，(user_id, currency) 唯一
type Address struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"not null;uniqueIndex:idx_addresses_user_currency" json:"user_id"`
	Currency    string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_addresses_user_currency" json:"currency"`
	Address     string    `gorm:"type:varchar(42);not null;index" json:"address"`
	HDPathIndex uint32    `gorm:"not null" json:"hd_path_index"` // BIP-44 address_index, 0 保留给主钱包
	CreatedAt   time.Time `json:"created_at"`
}

func (Address) TableName() string {
	return "deposit_addresses"
}
