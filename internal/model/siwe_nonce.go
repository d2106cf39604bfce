package model

import (
	"time"
)

// SiweNonce 钱包签名登录的一次性随机数
type SiweNonce struct {
	Nonce     string    `json:"nonce" gorm:"primaryKey;size:64"`
	SessionId string    `json:"session_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`

	// 服务端生成的待签名消息
	Message    string     `json:"-" gorm:"type:text"`
	ConsumedAt *time.Time `json:"consumed_at"`
}

// TableName 自定义表名
func (SiweNonce) TableName() string {
	return "siwe_nonce"
}
