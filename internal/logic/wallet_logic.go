package logic

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/auth"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// UnlinkConfirmationPhrase 解绑钱包需要用户输入的确认语
const UnlinkConfirmationPhrase = "unlink my wallet"

// LinkWalletRequest 绑定钱包请求，githubId 以字符串传入
type LinkWalletRequest struct {
	GithubId       string
	GithubUsername string
	WalletAddress  string
}

// WalletLogic 钱包绑定业务逻辑
type WalletLogic struct {
	wallets *repository.WalletRepository
}

// NewWalletLogic 创建钱包绑定业务逻辑
func NewWalletLogic(wallets *repository.WalletRepository) *WalletLogic {
	return &WalletLogic{wallets: wallets}
}

// ParseGithubId 解析字符串形式的 GitHub ID
func ParseGithubId(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid githubId %q", s)
	}
	return id, nil
}

// Link 将本会话签名验证过的钱包绑定到当前 GitHub 账号
func (l *WalletLogic) Link(ctx context.Context, sess *session.Session, req LinkWalletRequest) (*model.WalletBinding, error) {
	if err := auth.RequireSession(sess); err != nil {
		return nil, err
	}
	githubId, err := ParseGithubId(req.GithubId)
	if err != nil {
		return nil, err
	}
	if githubId != sess.GithubID {
		return nil, apperr.Forbidden("githubId does not match the signed-in account")
	}
	if !common.IsHexAddress(req.WalletAddress) {
		return nil, apperr.Validation("invalid walletAddress %q", req.WalletAddress)
	}
	if sess.WalletAddress == "" || !strings.EqualFold(sess.WalletAddress, req.WalletAddress) {
		return nil, apperr.Unauthenticated("wallet address has not been verified in this session")
	}

	username := req.GithubUsername
	if username == "" {
		username = sess.GithubUsername
	}

	binding := &model.WalletBinding{
		GithubId:       githubId,
		GithubUsername: username,
		WalletAddress:  common.HexToAddress(req.WalletAddress).Hex(),
	}
	if err := l.wallets.Upsert(ctx, binding); err != nil {
		return nil, apperr.Fatal(err, "failed to link wallet")
	}

	logger.With(logger.Workflow("wallet_link"), logger.Github(githubId)).Info("Linked wallet %s", binding.WalletAddress)
	return l.Get(ctx, githubId)
}

// Unlink 解绑钱包，confirmation 必须与确认语完全一致
func (l *WalletLogic) Unlink(ctx context.Context, sess *session.Session, confirmation string) error {
	if err := auth.RequireSession(sess); err != nil {
		return err
	}
	if confirmation != UnlinkConfirmationPhrase {
		return apperr.Validation("type %q to confirm", UnlinkConfirmationPhrase)
	}

	deleted, err := l.wallets.DeleteByGithubId(ctx, sess.GithubID)
	if err != nil {
		return apperr.Fatal(err, "failed to unlink wallet")
	}
	if !deleted {
		return apperr.NotFound("no wallet linked")
	}

	sess.WalletAddress = ""
	logger.With(logger.Workflow("wallet_unlink"), logger.Github(sess.GithubID)).Info("Unlinked wallet")
	return nil
}

// Get 获取绑定
func (l *WalletLogic) Get(ctx context.Context, githubId int64) (*model.WalletBinding, error) {
	binding, err := l.wallets.GetByGithubId(ctx, githubId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("no wallet linked")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load wallet binding")
	}
	return binding, nil
}
