package logic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/auth"
	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/money"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
	"gorm.io/gorm"
)

// Actor 发起状态变更的角色
type Actor int

const (
	ActorSponsor Actor = iota + 1 // 悬赏发起人
	ActorPayout                   // 支付流程
	ActorSystem                   // 定时对账
)

func (a Actor) String() string {
	switch a {
	case ActorSponsor:
		return "sponsor"
	case ActorPayout:
		return "payout"
	case ActorSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Evidence 状态变更的链上凭证
type Evidence struct {
	TxHash       string
	RequireProof bool // 为 true 时交易哈希必填
}

// TxConfirmer 交易确认查询，由 chain.Manager 实现
type TxConfirmer interface {
	IsTransactionConfirmed(ctx context.Context, network, txHash string) (bool, error)
}

// BountyLogic 悬赏状态机
type BountyLogic struct {
	bounties   *repository.BountyRepository
	reconciler *reconcile.Service
	confirmer  TxConfirmer
	now        func() time.Time
}

// NewBountyLogic 创建悬赏状态机
func NewBountyLogic(bounties *repository.BountyRepository, reconciler *reconcile.Service, confirmer TxConfirmer) *BountyLogic {
	return &BountyLogic{
		bounties:   bounties,
		reconciler: reconciler,
		confirmer:  confirmer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get 获取悬赏
func (l *BountyLogic) Get(ctx context.Context, bountyId string) (*model.Bounty, error) {
	bounty, err := l.bounties.GetByBountyId(ctx, bountyId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.ErrBountyNotFound
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load bounty")
	}
	return bounty, nil
}

// canTransition 角色是否可以把悬赏推进到目标状态
func canTransition(actor Actor, target model.BountyStatus) bool {
	switch target {
	case model.BountyStatusRefunded, model.BountyStatusCanceled:
		return actor == ActorSponsor || actor == ActorSystem
	case model.BountyStatusResolved:
		return actor == ActorPayout || actor == ActorSystem
	}
	return false
}

// Transition 将悬赏从 open 推进到终态。
// 写入是以 bounty_id + status=open 为条件的单条更新，并发请求只有一个成功，
// 其余返回 StateConflict。
func (l *BountyLogic) Transition(ctx context.Context, bountyId string, target model.BountyStatus, actor Actor, evidence Evidence) (*model.Bounty, error) {
	if !target.IsTerminal() {
		return nil, apperr.Validation("invalid target status %q", target)
	}
	if !canTransition(actor, target) {
		return nil, apperr.Forbidden("%s may not move a bounty to %s", actor, target)
	}
	if evidence.RequireProof && evidence.TxHash == "" {
		return nil, apperr.Validation("txHash is required")
	}
	if evidence.TxHash != "" && !chain.IsTxHash(evidence.TxHash) {
		return nil, apperr.Validation("invalid txHash %q", evidence.TxHash)
	}

	ok, err := l.bounties.CompareAndSetStatus(ctx, bountyId, model.BountyStatusOpen, target, repository.StatusUpdate{
		TxHash:    evidence.TxHash,
		SettledAt: l.now(),
	})
	if err != nil {
		return nil, apperr.Fatal(err, "failed to update bounty status")
	}

	current, err := l.Get(ctx, bountyId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return current, apperr.StateConflict("bounty is already %s", current.Status)
	}

	logger.With(logger.Bounty(bountyId)).Info("Bounty moved to %s by %s", target, actor)
	return current, nil
}

// RegisterRequest 登记悬赏请求
type RegisterRequest struct {
	BountyId     string
	RepoFullName string
	IssueNumber  int64
	Amount       string
	TokenSymbol  string
	Network      string
	Deadline     int64
	TxHash       string
}

func (r RegisterRequest) validate() error {
	if _, err := chain.ParseBountyId(r.BountyId); err != nil {
		return apperr.Validation("invalid bountyId %q", r.BountyId)
	}
	owner, name, ok := strings.Cut(r.RepoFullName, "/")
	if !ok || owner == "" || name == "" {
		return apperr.Validation("repoFullName must look like owner/name")
	}
	if r.IssueNumber <= 0 {
		return apperr.Validation("issueNumber must be positive")
	}
	amount, err := money.ParseMinor(r.Amount)
	if err != nil || amount.Sign() == 0 {
		return apperr.Validation("amount must be a positive integer in minor units")
	}
	if strings.TrimSpace(r.TokenSymbol) == "" {
		return apperr.Validation("tokenSymbol is required")
	}
	if r.Network == "" {
		return apperr.ErrNetworkNotConfigured
	}
	if r.Deadline <= 0 {
		return apperr.Validation("deadline is required")
	}
	if !chain.IsTxHash(r.TxHash) {
		return apperr.Validation("invalid txHash %q", r.TxHash)
	}
	return nil
}

// Register 在创建交易确认后登记悬赏，发起人为当前会话
func (l *BountyLogic) Register(ctx context.Context, sess *session.Session, req RegisterRequest) (*model.Bounty, error) {
	if err := auth.RequireSession(sess); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := l.bounties.GetByBountyId(ctx, req.BountyId); err == nil {
		return nil, apperr.StateConflict("bounty %s is already registered", req.BountyId)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Fatal(err, "failed to load bounty")
	}

	confirmed, err := l.confirmer.IsTransactionConfirmed(ctx, req.Network, req.TxHash)
	if errors.Is(err, chain.ErrUnknownNetwork) {
		return nil, apperr.Validation("network %q is not configured", req.Network)
	}
	if err != nil {
		return nil, apperr.Upstream(err, "failed to check funding transaction")
	}
	if !confirmed {
		return nil, apperr.PreconditionFailed("funding transaction is not confirmed yet")
	}

	onChain, err := l.reconciler.ReadOnChainBounty(ctx, req.BountyId, req.Network)
	if err != nil {
		return nil, err
	}
	if onChain.StatusCode != chain.StatusCodeOpen {
		return nil, apperr.PreconditionFailed("bounty is not open on chain")
	}
	if onChain.Amount == nil || onChain.Amount.String() != req.Amount {
		return nil, apperr.PreconditionFailed("on-chain amount does not match")
	}

	bounty := &model.Bounty{
		BountyId:        req.BountyId,
		RepoFullName:    req.RepoFullName,
		IssueNumber:     req.IssueNumber,
		SponsorGithubId: sess.GithubID,
		Amount:          req.Amount,
		TokenSymbol:     strings.ToUpper(strings.TrimSpace(req.TokenSymbol)),
		Network:         req.Network,
		Deadline:        req.Deadline,
		Status:          model.BountyStatusOpen,
		TxHash:          req.TxHash,
	}
	if err := l.bounties.Create(ctx, bounty); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.StateConflict("bounty %s is already registered", req.BountyId)
		}
		return nil, apperr.Fatal(err, "failed to register bounty")
	}

	logger.With(logger.Bounty(bounty.BountyId), logger.Github(sess.GithubID)).Info("Registered bounty for %s#%d", bounty.RepoFullName, bounty.IssueNumber)
	return bounty, nil
}

// SyncFromChain 链上已进入终态而数据库仍为 open 时，以系统身份推进数据库。
// 已被其他请求推进的悬赏视为无需处理，可重复执行。
func (l *BountyLogic) SyncFromChain(ctx context.Context, bounty *model.Bounty) (bool, error) {
	if bounty.Status != model.BountyStatusOpen {
		return false, nil
	}

	diff, _, err := l.reconciler.Compare(ctx, bounty)
	if err != nil {
		return false, err
	}
	if diff.AmountMismatch {
		logger.With(logger.Bounty(bounty.BountyId), logger.Network(bounty.Network)).Warn("On-chain amount differs from recorded amount %s", bounty.Amount)
	}
	if !diff.OnChainStatus.IsTerminal() {
		return false, nil
	}

	_, err = l.Transition(ctx, bounty.BountyId, diff.OnChainStatus, ActorSystem, Evidence{})
	if apperr.IsKind(err, apperr.KindStateConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
