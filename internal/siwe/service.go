// Package siwe 实现钱包签名登录：签发一次性随机数、生成服务端规范消息、
// 校验签名并把钱包地址绑定到会话。
package siwe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// Service 钱包签名登录服务
type Service struct {
	nonces *repository.NonceRepository
	cfg    config.SiweConfig
	now    func() time.Time
}

// NewService 创建签名登录服务
func NewService(nonces *repository.NonceRepository, cfg config.SiweConfig) *Service {
	return &Service{
		nonces: nonces,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) nonceTTL() time.Duration {
	if s.cfg.NonceTTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.cfg.NonceTTL) * time.Second
}

// IssueNonce 签发随机数并写入会话，调用方负责保存会话
func (s *Service) IssueNonce(ctx context.Context, sess *session.Session) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	now := s.now()
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	record := &model.SiweNonce{
		Nonce:     nonce,
		SessionId: sess.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.nonceTTL()),
	}
	if err := s.nonces.Create(ctx, record); err != nil {
		return "", apperr.Fatal(err, "failed to store nonce")
	}

	sess.Nonce = nonce
	return nonce, nil
}

// MessageRequest 生成消息请求，可选字段为空时使用配置默认值
type MessageRequest struct {
	Address   string
	Nonce     string
	ChainID   int64
	Domain    string
	URI       string
	Statement string
	Resources []string
}

// requireSingleLine 消息按行解析，字段内出现换行会破坏格式
func requireSingleLine(req MessageRequest) error {
	fields := []struct {
		name, value string
	}{
		{"domain", req.Domain},
		{"uri", req.URI},
		{"statement", req.Statement},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, "\r\n") {
			return apperr.Validation("%s must not contain line breaks", f.name)
		}
	}
	for i, r := range req.Resources {
		if strings.ContainsAny(r, "\r\n") {
			return apperr.Validation("resources[%d] must not contain line breaks", i)
		}
	}
	return nil
}

// BuildMessage 生成规范消息并记录到随机数上，签名校验只认这份服务端文本
func (s *Service) BuildMessage(ctx context.Context, sess *session.Session, req MessageRequest) (string, error) {
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Nonce) == "" {
		return "", apperr.Validation("address and nonce are required")
	}
	if !common.IsHexAddress(req.Address) {
		return "", apperr.Validation("invalid address %q", req.Address)
	}
	if err := requireSingleLine(req); err != nil {
		return "", err
	}
	if sess.Nonce == "" || sess.Nonce != req.Nonce {
		return "", apperr.ErrNonceMismatch
	}

	msg := Message{
		Domain:    firstNonEmpty(req.Domain, s.cfg.Domain),
		Address:   req.Address,
		Statement: firstNonEmpty(req.Statement, s.cfg.Statement),
		URI:       firstNonEmpty(req.URI, s.cfg.URI),
		Version:   messageVersion,
		ChainID:   req.ChainID,
		Nonce:     req.Nonce,
		IssuedAt:  s.now(),
		Resources: req.Resources,
	}
	if msg.ChainID <= 0 {
		msg.ChainID = s.cfg.DefaultChainID
	}
	text := RenderMessage(msg)

	ok, err := s.nonces.AttachMessage(ctx, req.Nonce, sess.ID, text, s.now())
	if err != nil {
		return "", apperr.Fatal(err, "failed to store message")
	}
	if !ok {
		return "", apperr.ErrNonceConsumed
	}
	return text, nil
}

// Verify 校验签名，成功后消费随机数并把钱包地址写入会话。
// 同一随机数的并发校验最多成功一次。
func (s *Service) Verify(ctx context.Context, sess *session.Session, address, signature string) (string, error) {
	if strings.TrimSpace(address) == "" || strings.TrimSpace(signature) == "" {
		return "", apperr.Validation("address and signature are required")
	}
	if sess.Nonce == "" {
		return "", apperr.ErrNonceMismatch
	}

	record, err := s.nonces.GetActive(ctx, sess.Nonce, sess.ID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.ErrNonceConsumed
	}
	if err != nil {
		return "", apperr.Fatal(err, "failed to load nonce")
	}
	if record.Message == "" {
		return "", apperr.Validation("message has not been generated for this nonce")
	}

	msg, err := ParseMessage(record.Message)
	if err != nil {
		return "", apperr.Fatal(err, "stored message is malformed")
	}
	if msg.Nonce != sess.Nonce {
		return "", apperr.ErrNonceMismatch
	}
	if !strings.EqualFold(msg.Address, address) {
		return "", apperr.ErrSignatureMismatch
	}

	recovered, err := RecoverAddress(record.Message, signature)
	if err != nil {
		return "", apperr.Validation("malformed signature")
	}
	if !strings.EqualFold(recovered.Hex(), address) {
		logger.With(logger.Workflow("siwe")).Warn("Signature does not match claimed address %s", address)
		return "", apperr.ErrSignatureMismatch
	}

	ok, err := s.nonces.Consume(ctx, sess.Nonce, sess.ID, s.now())
	if err != nil {
		return "", apperr.Fatal(err, "failed to consume nonce")
	}
	if !ok {
		return "", apperr.ErrNonceConsumed
	}

	sess.WalletAddress = recovered.Hex()
	sess.Nonce = ""
	return sess.WalletAddress, nil
}

// RecoverAddress 按 personal_sign (EIP-191) 规则从签名恢复地址
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// 钱包返回的 V 为 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
