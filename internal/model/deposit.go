package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus 充值记录的归集状态
// 只能前进: PENDING_SWEEP -> COMPLETED / FAILED，终态不再变化
type DepositStatus string

const (
	DepositStatusPendingSweep DepositStatus = "PENDING_SWEEP"
	DepositStatusCompleted    DepositStatus = "COMPLETED"
	DepositStatusFailed       DepositStatus = "FAILED"
)

func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusCompleted || s == DepositStatusFailed
}

// SweepMetadata 归集过程的附加信息 (jsonb)
type SweepMetadata struct {
	LastError        string     `json:"lastError,omitempty"`
	LastErrorTime    *time.Time `json:"lastErrorTime,omitempty"`
	FailedStage      string     `json:"failedStage,omitempty"`
	NextRetry        *time.Time `json:"nextRetry,omitempty"`        // 仅供参考，实际重试节奏跟随调度周期
	NextRetryDelayMs int64      `json:"nextRetryDelayMs,omitempty"` // base * 2^retryCount
	SweptAmount      string     `json:"sweptAmount,omitempty"`      // 链上最小单位
	GasTopUpTxHash   string     `json:"gasTopUpTxHash,omitempty"`
	PendingTxHash    string     `json:"pendingTxHash,omitempty"` // 已广播但确认超时的归集交易
	PendingAmount    string     `json:"pendingAmount,omitempty"`
	ZeroBalance      bool       `json:"zeroBalance,omitempty"`
}

// Deposit 待归集的充值记录
// 由外部入账流程创建 (PENDING_SWEEP)，之后只由 sweeper 修改，永不删除
type Deposit struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64          `gorm:"not null;index" json:"user_id"`
	Currency       string          `gorm:"type:varchar(16);not null" json:"currency"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"expected_amount"`
	Status         DepositStatus   `gorm:"type:varchar(20);not null;default:'PENDING_SWEEP';index:idx_deposits_queue,priority:1" json:"status"`
	RetryCount     int             `gorm:"not null;default:0" json:"retry_count"`
	TxHash         *string         `gorm:"type:varchar(66)" json:"tx_hash,omitempty"`
	Metadata       SweepMetadata   `gorm:"type:jsonb;serializer:json" json:"metadata"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"index:idx_deposits_queue,priority:2" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}
