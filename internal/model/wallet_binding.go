package model

import (
	"time"
)

// WalletBinding GitHub 账号与已验证钱包地址的绑定
type WalletBinding struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GithubId       int64  `json:"github_id" gorm:"uniqueIndex;not null"`
	GithubUsername string `json:"github_username"`
	WalletAddress  string `json:"wallet_address" gorm:"index;not null"`
}

// TableName 自定义表名
func (WalletBinding) TableName() string {
	return "wallet_binding"
}
