package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 钱包绑定
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包绑定仓储
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Upsert 按 github_id 新建或覆盖绑定
func (r *WalletRepository) Upsert(ctx context.Context, binding *model.WalletBinding) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "github_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"github_username", "wallet_address", "updated_at"}),
		}).
		Create(binding).Error
	if err != nil {
		return fmt.Errorf("upsert wallet binding for %d: %w", binding.GithubId, err)
	}
	return nil
}

// GetByGithubId 获取绑定
func (r *WalletRepository) GetByGithubId(ctx context.Context, githubId int64) (*model.WalletBinding, error) {
	var binding model.WalletBinding
	if err := r.db.WithContext(ctx).Where("github_id = ?", githubId).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet binding for %d: %w", githubId, err)
	}
	return &binding, nil
}

// DeleteByGithubId 删除绑定，返回是否删除了记录
func (r *WalletRepository) DeleteByGithubId(ctx context.Context, githubId int64) (bool, error) {
	result := r.db.WithContext(ctx).Where("github_id = ?", githubId).Delete(&model.WalletBinding{})
	if result.Error != nil {
		return false, fmt.Errorf("delete wallet binding for %d: %w", githubId, result.Error)
	}
	return result.RowsAffected > 0, nil
}
