package handler

import (
	"strconv"
	"time"

	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/money"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 钱包签名登录

// NonceResponse 随机数响应
type NonceResponse struct {
	Nonce string `json:"nonce"`
}

// MessageRequest 生成待签名消息请求，address/nonce 缺失时由业务层返回 400
type MessageRequest struct {
	Address   string   `json:"address"`
	Nonce     string   `json:"nonce"`
	ChainId   int64    `json:"chainId"`
	Domain    string   `json:"domain"`
	Uri       string   `json:"uri"`
	Statement string   `json:"statement"`
	Resources []string `json:"resources"`
}

// MessageResponse 待签名消息
type MessageResponse struct {
	Message string `json:"message"`
}

// VerifyRequest 签名校验请求
type VerifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResponse 签名校验响应
type VerifyResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
}

// 钱包绑定

// LinkWalletRequest 绑定钱包请求，githubId 为字符串
type LinkWalletRequest struct {
	GithubId       string `json:"githubId" binding:"required"`
	GithubUsername string `json:"githubUsername"`
	WalletAddress  string `json:"walletAddress" binding:"required"`
}

// UnlinkWalletRequest 解绑钱包请求
type UnlinkWalletRequest struct {
	Confirmation string `json:"confirmation"`
}

// WalletResponse 钱包绑定响应
type WalletResponse struct {
	GithubId       string    `json:"githubId"`
	GithubUsername string    `json:"githubUsername"`
	WalletAddress  string    `json:"walletAddress"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ToWalletResponse 转换钱包绑定
func ToWalletResponse(b *model.WalletBinding) WalletResponse {
	return WalletResponse{
		GithubId:       strconv.FormatInt(b.GithubId, 10),
		GithubUsername: b.GithubUsername,
		WalletAddress:  b.WalletAddress,
		UpdatedAt:      b.UpdatedAt,
	}
}

// 悬赏

// RegisterBountyRequest 登记悬赏请求，金额为最小单位整数字符串
type RegisterBountyRequest struct {
	BountyId     string `json:"bountyId" binding:"required"`
	RepoFullName string `json:"repoFullName" binding:"required"`
	IssueNumber  int64  `json:"issueNumber" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	TokenSymbol  string `json:"tokenSymbol" binding:"required"`
	Network      string `json:"network"`
	Deadline     int64  `json:"deadline" binding:"required"`
	TxHash       string `json:"txHash" binding:"required"`
}

// BountyResponse 悬赏响应
type BountyResponse struct {
	BountyId        string     `json:"bountyId"`
	RepoFullName    string     `json:"repoFullName"`
	IssueNumber     int64      `json:"issueNumber"`
	SponsorGithubId string     `json:"sponsorGithubId"`
	Amount          string     `json:"amount"`
	FormattedAmount string     `json:"formattedAmount"`
	TokenSymbol     string     `json:"tokenSymbol"`
	Network         string     `json:"network"`
	Deadline        int64      `json:"deadline"`
	Status          string     `json:"status"`
	TxHash          string     `json:"txHash"`
	SettledTxHash   string     `json:"settledTxHash,omitempty"`
	SettledAt       *time.Time `json:"settledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ToBountyResponse 转换悬赏，金额按代币精度格式化
func ToBountyResponse(b *model.Bounty) BountyResponse {
	formatted, err := money.FormatAmount(b.Amount, b.TokenSymbol)
	if err != nil {
		formatted = ""
	}
	return BountyResponse{
		BountyId:        b.BountyId,
		RepoFullName:    b.RepoFullName,
		IssueNumber:     b.IssueNumber,
		SponsorGithubId: strconv.FormatInt(b.SponsorGithubId, 10),
		Amount:          b.Amount,
		FormattedAmount: formatted,
		TokenSymbol:     b.TokenSymbol,
		Network:         b.Network,
		Deadline:        b.Deadline,
		Status:          string(b.Status),
		TxHash:          b.TxHash,
		SettledTxHash:   b.SettledTxHash,
		SettledAt:       b.SettledAt,
		CreatedAt:       b.CreatedAt,
	}
}

// ContractBountyResponse 链上悬赏记录
type ContractBountyResponse struct {
	BountyId        string `json:"bountyId"`
	Network         string `json:"network"`
	Sponsor         string `json:"sponsor"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
	FormattedAmount string `json:"formattedAmount"`
	TokenSymbol     string `json:"tokenSymbol"`
	Deadline        uint64 `json:"deadline"`
	StatusCode      uint8  `json:"statusCode"`
	Status          string `json:"status"`
	DbStatus        string `json:"dbStatus"`
	InSync          bool   `json:"inSync"`
}

// ToContractBountyResponse 转换链上记录，代币精度取数据库中的 tokenSymbol
func ToContractBountyResponse(b *model.Bounty, onChain *chain.OnChainBounty, diff *reconcile.Diff) ContractBountyResponse {
	resp := ContractBountyResponse{
		BountyId:    onChain.BountyId,
		Network:     onChain.Network,
		Sponsor:     onChain.Sponsor.Hex(),
		Token:       onChain.Token.Hex(),
		TokenSymbol: b.TokenSymbol,
		Deadline:    onChain.Deadline,
		StatusCode:  onChain.StatusCode,
		Status:      string(onChain.Status()),
		DbStatus:    string(b.Status),
		InSync:      diff.InSync(),
	}
	if onChain.Amount != nil {
		resp.Amount = onChain.Amount.String()
		resp.FormattedAmount = money.FormatMinor(onChain.Amount, b.TokenSymbol)
	}
	return resp
}

// 退款

// TxHashRequest 退款确认、自报退款、取消确认请求
type TxHashRequest struct {
	TxHash string `json:"txHash"`
}

// RefundResponse 退款响应
type RefundResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TxHash          string `json:"txHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	AlreadyRefunded bool   `json:"alreadyRefunded,omitempty"`
}
