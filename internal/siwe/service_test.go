package siwe

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/repository/repotest"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(repository.NewNonceRepository(repotest.NewDB(t)), config.SiweConfig{
		Domain:         "bounty.example",
		URI:            "https://bounty.example",
		Statement:      "Link your wallet.",
		DefaultChainID: 8453,
		NonceTTL:       3600,
	})
}

func sign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// prepare 签发随机数、生成消息并签名
func prepare(t *testing.T, svc *Service, sess *session.Session) (*ecdsa.PrivateKey, string, string) {
	t.Helper()
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := svc.IssueNonce(ctx, sess)
	require.NoError(t, err)

	message, err := svc.BuildMessage(ctx, sess, MessageRequest{Address: address, Nonce: nonce})
	require.NoError(t, err)

	return key, address, sign(t, key, message)
}

func TestIssueNonce(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}

	nonce, err := svc.IssueNonce(context.Background(), sess)
	require.NoError(t, err)
	assert.Len(t, nonce, 32)
	assert.Equal(t, nonce, sess.Nonce)
	assert.NotEmpty(t, sess.ID)

	other, err := svc.IssueNonce(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, nonce, other)
}

func TestBuildMessage_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sess := &session.Session{}
	nonce, err := svc.IssueNonce(ctx, sess)
	require.NoError(t, err)

	address := "0x00000000000000000000000000000000000000aa"
	tests := []struct {
		name string
		req  MessageRequest
		want apperr.Kind
	}{
		{"missing address", MessageRequest{Nonce: nonce}, apperr.KindValidation},
		{"missing nonce", MessageRequest{Address: address}, apperr.KindValidation},
		{"bad address", MessageRequest{Address: "0x1234", Nonce: nonce}, apperr.KindValidation},
		{"foreign nonce", MessageRequest{Address: address, Nonce: "deadbeef"}, apperr.KindUnauthenticated},
		{"multiline statement", MessageRequest{Address: address, Nonce: nonce, Statement: "Sign in\nURI: https://evil.example"}, apperr.KindValidation},
		{"multiline domain", MessageRequest{Address: address, Nonce: nonce, Domain: "bounty.example\n"}, apperr.KindValidation},
		{"multiline uri", MessageRequest{Address: address, Nonce: nonce, URI: "https://bounty.example\r\nVersion: 2"}, apperr.KindValidation},
		{"resource with carriage return", MessageRequest{Address: address, Nonce: nonce, Resources: []string{"https://ok.example", "https://a.example\rb"}}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BuildMessage(ctx, sess, tt.req)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}

	// 被拒绝的请求不会把消息写到随机数上，随后仍可正常生成
	text, err := svc.BuildMessage(ctx, sess, MessageRequest{Address: address, Nonce: nonce, Statement: "Sign in to bounty"})
	require.NoError(t, err)
	assert.Contains(t, text, "Sign in to bounty")
}

func TestBuildMessage_Defaults(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sess := &session.Session{}
	nonce, err := svc.IssueNonce(ctx, sess)
	require.NoError(t, err)

	text, err := svc.BuildMessage(ctx, sess, MessageRequest{
		Address:   "0x00000000000000000000000000000000000000aa",
		Nonce:     nonce,
		Resources: []string{"https://github.com/acme/widgets"},
	})
	require.NoError(t, err)

	msg, err := ParseMessage(text)
	require.NoError(t, err)
	assert.Equal(t, "bounty.example", msg.Domain)
	assert.Equal(t, "https://bounty.example", msg.URI)
	assert.Equal(t, "Link your wallet.", msg.Statement)
	assert.Equal(t, int64(8453), msg.ChainID)
	assert.Equal(t, nonce, msg.Nonce)
	assert.Equal(t, []string{"https://github.com/acme/widgets"}, msg.Resources)
}

func TestVerify_Success(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{GithubID: 1001}
	_, address, signature := prepare(t, svc, sess)

	// 大小写不敏感
	got, err := svc.Verify(context.Background(), sess, strings.ToLower(address), signature)
	require.NoError(t, err)
	assert.Equal(t, address, got)
	assert.Equal(t, address, sess.WalletAddress)
	assert.Empty(t, sess.Nonce)
}

func TestVerify_Replay(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}
	_, address, signature := prepare(t, svc, sess)
	nonce := sess.Nonce

	_, err := svc.Verify(context.Background(), sess, address, signature)
	require.NoError(t, err)

	// 重放同一随机数与签名
	sess.Nonce = nonce
	_, err = svc.Verify(context.Background(), sess, address, signature)
	assert.ErrorIs(t, err, apperr.ErrNonceConsumed)
}

func TestVerify_AddressDiffersByOneCharacter(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}
	_, address, signature := prepare(t, svc, sess)

	last := address[len(address)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	tampered := address[:len(address)-1] + string(replacement)

	_, err := svc.Verify(context.Background(), sess, tampered, signature)
	assert.ErrorIs(t, err, apperr.ErrSignatureMismatch)
	assert.Empty(t, sess.WalletAddress)
	assert.NotEmpty(t, sess.Nonce, "failed verification must not consume the nonce")
}

func TestVerify_WrongSigner(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}
	_, address, _ := prepare(t, svc, sess)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	record, err := svc.nonces.GetActive(context.Background(), sess.Nonce, sess.ID, svc.now())
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), sess, address, sign(t, other, record.Message))
	assert.ErrorIs(t, err, apperr.ErrSignatureMismatch)
}

func TestVerify_MissingNonceOrFields(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Verify(ctx, &session.Session{}, "0x00000000000000000000000000000000000000aa", "0x01")
	assert.ErrorIs(t, err, apperr.ErrNonceMismatch)

	_, err = svc.Verify(ctx, &session.Session{Nonce: "abc"}, "", "0x01")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerify_MessageNotBuilt(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}
	_, err := svc.IssueNonce(context.Background(), sess)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), sess, "0x00000000000000000000000000000000000000aa", "0x01")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerify_Expired(t *testing.T) {
	svc := newService(t)
	sess := &session.Session{}
	_, address, signature := prepare(t, svc, sess)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err := svc.Verify(context.Background(), sess, address, signature)
	assert.ErrorIs(t, err, apperr.ErrNonceConsumed)
}

func TestVerify_ConcurrentSameNonce(t *testing.T) {
	svc := newService(t)
	base := &session.Session{}
	_, address, signature := prepare(t, svc, base)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		sess := *base
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if _, err := svc.Verify(context.Background(), sess, address, signature); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(&sess)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestRenderParseMessage(t *testing.T) {
	m := Message{
		Domain:   "bounty.example",
		Address:  "0x00000000000000000000000000000000000000aa",
		URI:      "https://bounty.example",
		Version:  "1",
		ChainID:  1,
		Nonce:    "abc123",
		IssuedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	text := RenderMessage(m)
	assert.Equal(t, "bounty.example wants you to sign in with your Ethereum account:\n"+
		common.HexToAddress(m.Address).Hex()+"\n\n"+
		"URI: https://bounty.example\nVersion: 1\nChain ID: 1\nNonce: abc123\nIssued At: 2024-05-01T12:00:00Z", text)

	parsed, err := ParseMessage(text)
	require.NoError(t, err)
	assert.Empty(t, parsed.Statement)
	assert.Equal(t, "abc123", parsed.Nonce)
	assert.True(t, m.IssuedAt.Equal(parsed.IssuedAt))

	_, err = ParseMessage("hello")
	assert.Error(t, err)
}
