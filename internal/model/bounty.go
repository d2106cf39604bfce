package model

import (
	"time"
)

// BountyStatus 悬赏状态
type BountyStatus string

const (
	BountyStatusOpen     BountyStatus = "open"     // 托管中
	BountyStatusResolved BountyStatus = "resolved" // 已支付给贡献者
	BountyStatusRefunded BountyStatus = "refunded" // 已退款给发起人
	BountyStatusCanceled BountyStatus = "canceled" // 已取消
)

// IsTerminal 是否为终态，终态不可再流转
func (s BountyStatus) IsTerminal() bool {
	switch s {
	case BountyStatusResolved, BountyStatusRefunded, BountyStatusCanceled:
		return true
	}
	return false
}

// Valid 是否为合法状态
func (s BountyStatus) Valid() bool {
	return s == BountyStatusOpen || s.IsTerminal()
}

// Bounty 悬赏，对应链上托管合约中的一条记录
type Bounty struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BountyId        string `json:"bounty_id" gorm:"uniqueIndex;size:66;not null"` // 链上ID
	RepoFullName    string `json:"repo_full_name" gorm:"index;not null"`
	IssueNumber     int64  `json:"issue_number" gorm:"not null"`
	SponsorGithubId int64  `json:"sponsor_github_id" gorm:"index;not null"`

	// 金额为最小单位整数字符串，创建后不可修改
	Amount      string `json:"amount" gorm:"not null"`
	TokenSymbol string `json:"token_symbol" gorm:"not null"`
	Network     string `json:"network"` // 网络别名，决定对账使用的链

	Deadline int64        `json:"deadline"` // unix 秒
	Status   BountyStatus `json:"status" gorm:"index;default:'open';not null"`
	TxHash   string       `json:"tx_hash"` // 创建交易

	// 终态时写入
	SettledTxHash string     `json:"settled_tx_hash"`
	SettledAt     *time.Time `json:"settled_at"`
}

// TableName 自定义表名
func (Bounty) TableName() string {
	return "bounty"
}

// DeadlinePassed 截止时间是否已严格过去
func (b *Bounty) DeadlinePassed(now time.Time) bool {
	return b.Deadline > 0 && now.Unix() > b.Deadline
}
