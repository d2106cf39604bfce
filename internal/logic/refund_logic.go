package logic

import (
	"context"
	"errors"
	"time"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/auth"
	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// RefundSubmitter 代管退款交易提交，由 chain.Manager 实现
type RefundSubmitter interface {
	SubmitRefund(ctx context.Context, network, bountyId string) (*chain.TxResult, error)
}

// RefundResult 退款结果
type RefundResult struct {
	Success         bool   `json:"success"`
	TxHash          string `json:"txHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	AlreadyRefunded bool   `json:"alreadyRefunded,omitempty"`
}

// RefundLogic 三种退款路径：代管退款、用户自行退款后确认、自报退款
type RefundLogic struct {
	machine    *BountyLogic
	reconciler *reconcile.Service
	submitter  RefundSubmitter
	now        func() time.Time
}

// NewRefundLogic 创建退款业务逻辑
func NewRefundLogic(machine *BountyLogic, reconciler *reconcile.Service, submitter RefundSubmitter) *RefundLogic {
	return &RefundLogic{
		machine:    machine,
		reconciler: reconciler,
		submitter:  submitter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// loadForSponsor 加载悬赏并校验发起人身份
func (l *RefundLogic) loadForSponsor(ctx context.Context, sess *session.Session, bountyId string) (*model.Bounty, error) {
	if err := auth.RequireSession(sess); err != nil {
		return nil, err
	}
	bounty, err := l.machine.Get(ctx, bountyId)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireSponsor(bounty, sess); err != nil {
		return nil, err
	}
	return bounty, nil
}

func requireOpen(bounty *model.Bounty) error {
	if bounty.Status != model.BountyStatusOpen {
		return apperr.StateConflict("bounty is already %s", bounty.Status)
	}
	return nil
}

// CustodialRefund 服务端签名并提交退款交易，上链成功后再提交数据库。
// 交易未提交成功时数据库保持不变。
func (l *RefundLogic) CustodialRefund(ctx context.Context, sess *session.Session, bountyId string) (*RefundResult, error) {
	log := logger.With(logger.Workflow("custodial_refund"), logger.Bounty(bountyId), logger.Github(sess.GithubID))

	bounty, err := l.loadForSponsor(ctx, sess, bountyId)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(bounty); err != nil {
		return nil, err
	}
	if bounty.Network == "" {
		return nil, apperr.ErrNetworkNotConfigured
	}
	if !bounty.DeadlinePassed(l.now()) {
		return nil, apperr.PreconditionFailed("bounty deadline has not passed")
	}

	onChain, err := l.reconciler.ReadOnChainBounty(ctx, bounty.BountyId, bounty.Network)
	if err != nil {
		log.Warn("Failed to read on-chain bounty: %v", err)
		return nil, err
	}

	switch onChain.StatusCode {
	case chain.StatusCodeOpen:
	case chain.StatusCodeRefunded:
		// 上一次提交已上链但数据库未提交，直接补提交
		log.Warn("Bounty already refunded on chain, recording without a new transaction")
		if _, err := l.machine.Transition(ctx, bountyId, model.BountyStatusRefunded, ActorSponsor, Evidence{}); err != nil {
			return nil, err
		}
		return &RefundResult{Success: true, AlreadyRefunded: true}, nil
	default:
		return nil, apperr.PreconditionFailed("bounty is not refundable on chain")
	}

	tx, err := l.submitter.SubmitRefund(ctx, bounty.Network, bounty.BountyId)
	if err != nil {
		if errors.Is(err, chain.ErrNoSigner) {
			return nil, apperr.PreconditionFailed("custodial refunds are not enabled on network %s", bounty.Network)
		}
		// 并发请求已先一步退款时合约会回滚本次交易
		if settled := l.settledElsewhere(ctx, bounty); settled != "" {
			log.Warn("Refund transaction failed after bounty became %s: %v", settled, err)
			return nil, apperr.StateConflict("bounty is already %s", settled)
		}
		switch {
		case tx != nil && tx.TxHash != "":
			log.With(logger.TxHash(tx.TxHash)).Error("Refund transaction sent but not confirmed: %v", err)
			return nil, apperr.Upstream(err, "refund transaction %s was sent but not confirmed", tx.TxHash)
		default:
			log.Error("Refund transaction was not submitted: %v", err)
			return nil, apperr.Upstream(err, "refund transaction was not submitted")
		}
	}

	if _, err := l.machine.Transition(ctx, bountyId, model.BountyStatusRefunded, ActorSponsor, Evidence{TxHash: tx.TxHash, RequireProof: true}); err != nil {
		if apperr.IsKind(err, apperr.KindFatal) {
			// 链上已退款，数据库仍为 open，对账任务会补齐
			log.With(logger.TxHash(tx.TxHash)).Error("Refund confirmed on chain but database commit failed: %v", err)
		}
		return nil, err
	}

	log.With(logger.TxHash(tx.TxHash)).Info("Custodial refund completed in block %d", tx.BlockNumber)
	return &RefundResult{Success: true, TxHash: tx.TxHash, BlockNumber: tx.BlockNumber}, nil
}

// settledElsewhere 提交失败后重新读取数据库和链上状态，返回已进入的终态，仍为 open 时返回空串
func (l *RefundLogic) settledElsewhere(ctx context.Context, bounty *model.Bounty) model.BountyStatus {
	if current, err := l.machine.Get(ctx, bounty.BountyId); err == nil && current.Status != model.BountyStatusOpen {
		return current.Status
	}
	onChain, err := l.reconciler.ReadOnChainBounty(ctx, bounty.BountyId, bounty.Network)
	if err != nil {
		return ""
	}
	if status := onChain.Status(); status.IsTerminal() {
		return status
	}
	return ""
}

// ConfirmRefund 用户自行提交退款交易后上报哈希，链上确认为 refunded 才提交数据库
func (l *RefundLogic) ConfirmRefund(ctx context.Context, sess *session.Session, bountyId, txHash string) (*RefundResult, error) {
	if txHash == "" {
		return nil, apperr.Validation("txHash is required")
	}
	if !chain.IsTxHash(txHash) {
		return nil, apperr.Validation("invalid txHash %q", txHash)
	}

	bounty, err := l.loadForSponsor(ctx, sess, bountyId)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(bounty); err != nil {
		return nil, err
	}

	if _, err := l.reconciler.RequireStatus(ctx, bounty, model.BountyStatusRefunded); err != nil {
		logger.With(logger.Workflow("confirm_refund"), logger.Bounty(bountyId), logger.Github(sess.GithubID)).Warn("Refund not confirmed on chain: %v", err)
		return nil, err
	}

	if _, err := l.machine.Transition(ctx, bountyId, model.BountyStatusRefunded, ActorSponsor, Evidence{TxHash: txHash, RequireProof: true}); err != nil {
		return nil, err
	}
	return &RefundResult{Success: true, TxHash: txHash}, nil
}

// SelfReportRefund 自报退款，不校验链上状态。
// 已退款的悬赏直接返回成功，交易哈希仅作记录。
func (l *RefundLogic) SelfReportRefund(ctx context.Context, sess *session.Session, bountyId, txHash string) (*RefundResult, error) {
	if err := auth.RequireSession(sess); err != nil {
		return nil, err
	}
	bounty, err := l.machine.Get(ctx, bountyId)
	if err != nil {
		return nil, err
	}
	if bounty.Status == model.BountyStatusRefunded {
		return &RefundResult{Success: true, TxHash: bounty.SettledTxHash, AlreadyRefunded: true}, nil
	}
	if err := auth.RequireSponsor(bounty, sess); err != nil {
		return nil, err
	}

	if _, err := l.machine.Transition(ctx, bountyId, model.BountyStatusRefunded, ActorSponsor, Evidence{TxHash: txHash}); err != nil {
		return nil, err
	}

	logger.With(logger.Workflow("self_report_refund"), logger.Bounty(bountyId), logger.Github(sess.GithubID)).Info("Recorded self-reported refund without on-chain confirmation")
	return &RefundResult{Success: true, TxHash: txHash}, nil
}

// ConfirmCancel 链上已取消后，发起人确认取消
func (l *RefundLogic) ConfirmCancel(ctx context.Context, sess *session.Session, bountyId, txHash string) (*RefundResult, error) {
	if txHash != "" && !chain.IsTxHash(txHash) {
		return nil, apperr.Validation("invalid txHash %q", txHash)
	}

	bounty, err := l.loadForSponsor(ctx, sess, bountyId)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(bounty); err != nil {
		return nil, err
	}
	if _, err := l.reconciler.RequireStatus(ctx, bounty, model.BountyStatusCanceled); err != nil {
		return nil, err
	}

	if _, err := l.machine.Transition(ctx, bountyId, model.BountyStatusCanceled, ActorSponsor, Evidence{TxHash: txHash}); err != nil {
		return nil, err
	}
	return &RefundResult{Success: true, TxHash: txHash}, nil
}
