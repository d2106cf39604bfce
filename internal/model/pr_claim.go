package model

import (
	"time"
)

// ClaimStatus PR 领取状态
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusResolved ClaimStatus = "resolved"
	ClaimStatusPaid     ClaimStatus = "paid"
	ClaimStatusFailed   ClaimStatus = "failed"
)

// PRClaim 贡献者通过合并的 PR 领取悬赏
type PRClaim struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	BountyId            string      `json:"bounty_id" gorm:"index;not null"`
	ContributorGithubId int64       `json:"contributor_github_id" gorm:"index;not null"`
	PrNumber            int64       `json:"pr_number" gorm:"not null"`
	Status              ClaimStatus `json:"status" gorm:"default:'pending';not null"`
	TxHash              string      `json:"tx_hash"`
	ResolvedAt          *time.Time  `json:"resolved_at"`
}

// TableName 自定义表名
func (PRClaim) TableName() string {
	return "pr_claim"
}
