// Package reconcile 读取链上托管合约状态并与数据库记录比对。
// 该包不依赖其他业务组件。
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
)

// Reader 链上只读接口，由 chain.Manager 实现
type Reader interface {
	ReadBounty(ctx context.Context, network, bountyId string) (*chain.OnChainBounty, error)
}

// Service 对账服务
type Service struct {
	reader Reader
}

// NewService 创建对账服务
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// ReadOnChainBounty 读取链上悬赏记录。
// 未配置网络直接拒绝，不回退到默认网络；RPC 失败返回可重试的 Upstream 错误。
func (s *Service) ReadOnChainBounty(ctx context.Context, bountyId, network string) (*chain.OnChainBounty, error) {
	if network == "" {
		return nil, apperr.ErrNetworkNotConfigured
	}
	if _, err := chain.ParseBountyId(bountyId); err != nil {
		return nil, apperr.Validation("invalid bounty id %q", bountyId)
	}

	onChain, err := s.reader.ReadBounty(ctx, network, bountyId)
	if err != nil {
		if errors.Is(err, chain.ErrUnknownNetwork) {
			return nil, apperr.Validation("network %q is not configured", network)
		}
		return nil, apperr.Upstream(err, "failed to read bounty from chain")
	}
	return onChain, nil
}

// RequireStatus 要求链上状态等于 want，否则返回 PreconditionFailed
func (s *Service) RequireStatus(ctx context.Context, bounty *model.Bounty, want model.BountyStatus) (*chain.OnChainBounty, error) {
	onChain, err := s.ReadOnChainBounty(ctx, bounty.BountyId, bounty.Network)
	if err != nil {
		return nil, err
	}
	if onChain.StatusCode != chain.StatusCodeFor(want) {
		return onChain, apperr.PreconditionFailed("on-chain status is %s, expected %s", describe(onChain), want)
	}
	return onChain, nil
}

// Diff 链上与数据库的差异
type Diff struct {
	BountyId       string
	DBStatus       model.BountyStatus
	OnChainStatus  model.BountyStatus
	AmountMismatch bool
}

// InSync 状态与金额都一致
func (d Diff) InSync() bool {
	return d.DBStatus == d.OnChainStatus && !d.AmountMismatch
}

// Compare 比对数据库记录与链上记录
func (s *Service) Compare(ctx context.Context, bounty *model.Bounty) (*Diff, *chain.OnChainBounty, error) {
	onChain, err := s.ReadOnChainBounty(ctx, bounty.BountyId, bounty.Network)
	if err != nil {
		return nil, nil, err
	}

	diff := &Diff{
		BountyId:      bounty.BountyId,
		DBStatus:      bounty.Status,
		OnChainStatus: onChain.Status(),
	}
	if onChain.Amount != nil && onChain.Amount.String() != bounty.Amount {
		diff.AmountMismatch = true
	}
	return diff, onChain, nil
}

func describe(b *chain.OnChainBounty) string {
	if status := b.Status(); status != "" {
		return string(status)
	}
	return fmt.Sprintf("code %d", b.StatusCode)
}
