package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aduersarius/polybet-sub009/internal/model"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// DepositRepository sweeper 对存储层的全部依赖
type DepositRepository interface {
	// ListPendingSweeps 按 created_at 先进先出取出待归集记录
	ListPendingSweeps(ctx context.Context, limit, maxRetries int) ([]model.Deposit, error)
	// FindDepositAddress 按 (user_id, currency) 查找充值地址，找不到返回 errno.ErrAddressNotFound
	FindDepositAddress(ctx context.Context, userID uint64, currency string) (*model.Address, error)
	// UpdatePending 在事务中锁定记录并执行 mutate
	// 记录已是终态时不调用 mutate，返回 applied=false 且 err=nil
	UpdatePending(ctx context.Context, id uint64, mutate func(d *model.Deposit) error) (*model.Deposit, bool, error)
}

// SQLDepositRepository 基于 gorm 的实现
type SQLDepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *SQLDepositRepository {
	return &SQLDepositRepository{db: db}
}

func (r *SQLDepositRepository) ListPendingSweeps(ctx context.Context, limit, maxRetries int) ([]model.Deposit, error) {
	var deposits []model.Deposit
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", model.DepositStatusPendingSweep, maxRetries).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("%w: 查询待归集记录失败: %w", errno.ErrDatabase, err)
	}
	return deposits, nil
}

func (r *SQLDepositRepository) FindDepositAddress(ctx context.Context, userID uint64, currency string) (*model.Address, error) {
	var addr model.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user=%d currency=%s", errno.ErrAddressNotFound, userID, currency)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 查询充值地址失败: %w", errno.ErrDatabase, err)
	}
	return &addr, nil
}

func (r *SQLDepositRepository) UpdatePending(ctx context.Context, id uint64, mutate func(d *model.Deposit) error) (*model.Deposit, bool, error) {
	var (
		result  model.Deposit
		applied bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 行锁
		var d model.Deposit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id=%d", errno.ErrDepositNotFound, id)
			}
			return err
		}

		// 2. 终态幂等: 重复写入直接忽略
		if d.Status.IsTerminal() {
			result = d
			return nil
		}

		before := d
		if err := mutate(&d); err != nil {
			return err
		}

		// 3. 不变量: 状态只能前进，重试次数不能回退
		if d.RetryCount < before.RetryCount {
			return fmt.Errorf("retry_count 不能回退: %d -> %d", before.RetryCount, d.RetryCount)
		}
		if d.ID != before.ID || d.UserID != before.UserID || d.Currency != before.Currency {
			return fmt.Errorf("不允许修改充值记录的身份字段 (id=%d)", id)
		}

		if err := tx.Select("Status", "RetryCount", "TxHash", "Metadata", "CompletedAt", "UpdatedAt").
			Updates(&d).Error; err != nil {
			return err
		}

		result = d
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, applied, nil
}
