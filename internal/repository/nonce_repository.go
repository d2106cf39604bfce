package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"gorm.io/gorm"
)

// NonceRepository 一次性随机数存储
type NonceRepository struct {
	db *gorm.DB
}

// NewNonceRepository 创建随机数仓储
func NewNonceRepository(db *gorm.DB) *NonceRepository {
	return &NonceRepository{db: db}
}

// Create 保存新签发的随机数
func (r *NonceRepository) Create(ctx context.Context, nonce *model.SiweNonce) error {
	if err := r.db.WithContext(ctx).Create(nonce).Error; err != nil {
		return fmt.Errorf("create nonce: %w", err)
	}
	return nil
}

// GetActive 获取属于该会话、未使用且未过期的随机数
func (r *NonceRepository) GetActive(ctx context.Context, nonce, sessionId string, now time.Time) (*model.SiweNonce, error) {
	var record model.SiweNonce
	err := r.db.WithContext(ctx).
		Where("nonce = ? AND session_id = ? AND consumed_at IS NULL AND expires_at > ?", nonce, sessionId, now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	return &record, nil
}

// AttachMessage 记录服务端生成的待签名消息
func (r *NonceRepository) AttachMessage(ctx context.Context, nonce, sessionId, message string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.SiweNonce{}).
		Where("nonce = ? AND session_id = ? AND consumed_at IS NULL AND expires_at > ?", nonce, sessionId, now).
		Update("message", message)
	if result.Error != nil {
		return false, fmt.Errorf("attach message to nonce: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Consume 条件更新标记随机数已使用，并发调用最多一个返回 true
func (r *NonceRepository) Consume(ctx context.Context, nonce, sessionId string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.SiweNonce{}).
		Where("nonce = ? AND session_id = ? AND consumed_at IS NULL AND expires_at > ?", nonce, sessionId, now).
		Update("consumed_at", now)
	if result.Error != nil {
		return false, fmt.Errorf("consume nonce: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteExpired 清理过期或已使用的随机数
func (r *NonceRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ? OR consumed_at <= ?", before, before).
		Delete(&model.SiweNonce{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired nonces: %w", result.Error)
	}
	return result.RowsAffected, nil
}
