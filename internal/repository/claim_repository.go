package repository

import (
	"context"
	"fmt"

	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"gorm.io/gorm"
)

// ClaimRepository PR 领取记录
type ClaimRepository struct {
	db *gorm.DB
}

// NewClaimRepository 创建领取记录仓储
func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create 创建领取记录
func (r *ClaimRepository) Create(ctx context.Context, claim *model.PRClaim) error {
	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		return fmt.Errorf("create claim for bounty %s: %w", claim.BountyId, err)
	}
	return nil
}

// ClaimedBounty 贡献者已领取的悬赏
type ClaimedBounty struct {
	BountyId     string
	RepoFullName string
	IssueNumber  int64
	PrNumber     int64
	Amount       string
	TokenSymbol  string
	TxHash       string
}

// ListPaidByContributor 获取贡献者已支付的领取记录及对应悬赏金额
func (r *ClaimRepository) ListPaidByContributor(ctx context.Context, githubId int64) ([]ClaimedBounty, error) {
	var rows []ClaimedBounty
	err := r.db.WithContext(ctx).
		Table("pr_claim").
		Select("pr_claim.bounty_id, bounty.repo_full_name, bounty.issue_number, pr_claim.pr_number, bounty.amount, bounty.token_symbol, pr_claim.tx_hash").
		Joins("JOIN bounty ON bounty.bounty_id = pr_claim.bounty_id").
		Where("pr_claim.contributor_github_id = ? AND pr_claim.status = ?", githubId, model.ClaimStatusPaid).
		Order("pr_claim.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list paid claims for %d: %w", githubId, err)
	}
	return rows, nil
}
