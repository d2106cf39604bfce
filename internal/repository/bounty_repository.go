package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"gorm.io/gorm"
)

// BountyRepository 悬赏持久化
type BountyRepository struct {
	db *gorm.DB
}

// NewBountyRepository 创建悬赏仓储
func NewBountyRepository(db *gorm.DB) *BountyRepository {
	return &BountyRepository{db: db}
}

// Create 创建悬赏
func (r *BountyRepository) Create(ctx context.Context, bounty *model.Bounty) error {
	if err := r.db.WithContext(ctx).Create(bounty).Error; err != nil {
		return fmt.Errorf("create bounty %s: %w", bounty.BountyId, err)
	}
	return nil
}

// GetByBountyId 根据链上ID获取悬赏
func (r *BountyRepository) GetByBountyId(ctx context.Context, bountyId string) (*model.Bounty, error) {
	var bounty model.Bounty
	if err := r.db.WithContext(ctx).Where("bounty_id = ?", bountyId).First(&bounty).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bounty %s: %w", bountyId, err)
	}
	return &bounty, nil
}

// StatusUpdate 状态变更附带写入的字段
type StatusUpdate struct {
	TxHash    string
	SettledAt time.Time
}

// CompareAndSetStatus 以 bounty_id + 期望的当前状态为条件的单条更新。
// 并发请求中只有一个能观察到 from 状态并写入成功，返回 true。
func (r *BountyRepository) CompareAndSetStatus(ctx context.Context, bountyId string, from, to model.BountyStatus, update StatusUpdate) (bool, error) {
	settledAt := update.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&model.Bounty{}).
		Where("bounty_id = ? AND status = ?", bountyId, from).
		Updates(map[string]interface{}{
			"status":          to,
			"settled_tx_hash": update.TxHash,
			"settled_at":      settledAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("update bounty %s status %s -> %s: %w", bountyId, from, to, result.Error)
	}

	return result.RowsAffected == 1, nil
}

// ListOpenWithNetwork 获取配置了网络的进行中悬赏，按 id 升序分页
func (r *BountyRepository) ListOpenWithNetwork(ctx context.Context, afterId int64, limit int) ([]model.Bounty, error) {
	var bounties []model.Bounty
	err := r.db.WithContext(ctx).
		Where("status = ? AND network <> '' AND id > ?", model.BountyStatusOpen, afterId).
		Order("id ASC").
		Limit(limit).
		Find(&bounties).Error
	if err != nil {
		return nil, fmt.Errorf("list open bounties: %w", err)
	}
	return bounties, nil
}

// CountByStatus 各状态悬赏数量
func (r *BountyRepository) CountByStatus(ctx context.Context) (map[model.BountyStatus]int64, error) {
	var rows []struct {
		Status model.BountyStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Bounty{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count bounties by status: %w", err)
	}

	counts := make(map[model.BountyStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// AmountRow 金额统计行
type AmountRow struct {
	Status      model.BountyStatus
	TokenSymbol string
	Amount      string
}

// ListAmounts 获取所有悬赏的金额与代币，金额为字符串无法直接在 SQL 中求和
func (r *BountyRepository) ListAmounts(ctx context.Context) ([]AmountRow, error) {
	var rows []AmountRow
	err := r.db.WithContext(ctx).
		Model(&model.Bounty{}).
		Select("status, token_symbol, amount").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list bounty amounts: %w", err)
	}
	return rows, nil
}
