package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/repository/repotest"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

const (
	sponsorID   int64 = 1001
	strangerID  int64 = 2002
	testNetwork       = "base-sepolia"
)

var testTxHash = "0x" + strings.Repeat("ab", 32)

func testBountyId(n int) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", n), 32)
}

var errReverted = errors.New("execution reverted: bounty not open")

// fakeChain 内存中的托管合约
type fakeChain struct {
	mu         sync.Mutex
	status     uint8
	amount     *big.Int
	readErr    error
	confirmed  bool
	confirmErr error
	submitErr  error
	submitTx   *chain.TxResult
	reads      int
	submits    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{status: chain.StatusCodeOpen, amount: big.NewInt(1000000), confirmed: true}
}

func (f *fakeChain) setStatus(code uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func (f *fakeChain) ReadBounty(ctx context.Context, network, bountyId string) (*chain.OnChainBounty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &chain.OnChainBounty{
		BountyId:   bountyId,
		Network:    network,
		Amount:     new(big.Int).Set(f.amount),
		StatusCode: f.status,
	}, nil
}

func (f *fakeChain) IsTransactionConfirmed(ctx context.Context, network, txHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed, f.confirmErr
}

func (f *fakeChain) SubmitRefund(ctx context.Context, network, bountyId string) (*chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return f.submitTx, f.submitErr
	}
	if f.status != chain.StatusCodeOpen {
		return nil, errReverted
	}
	f.status = chain.StatusCodeRefunded
	return &chain.TxResult{TxHash: testTxHash, BlockNumber: 100}, nil
}

func (f *fakeChain) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fixture struct {
	db       *gorm.DB
	bounties *repository.BountyRepository
	chain    *fakeChain
	machine  *BountyLogic
	refunds  *RefundLogic
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := repotest.NewDB(t)
	fc := newFakeChain()
	bounties := repository.NewBountyRepository(db)
	reconciler := reconcile.NewService(fc)
	machine := NewBountyLogic(bounties, reconciler, fc)

	return &fixture{
		db:       db,
		bounties: bounties,
		chain:    fc,
		machine:  machine,
		refunds:  NewRefundLogic(machine, reconciler, fc),
	}
}

// seed 写入一条已过截止时间的 open 悬赏
func (f *fixture) seed(t *testing.T, n int, mutate ...func(*model.Bounty)) *model.Bounty {
	t.Helper()

	bounty := &model.Bounty{
		BountyId:        testBountyId(n),
		RepoFullName:    "acme/widgets",
		IssueNumber:     int64(n),
		SponsorGithubId: sponsorID,
		Amount:          "1000000",
		TokenSymbol:     "USDC",
		Network:         testNetwork,
		Deadline:        time.Now().Add(-time.Hour).Unix(),
		Status:          model.BountyStatusOpen,
	}
	for _, fn := range mutate {
		fn(bounty)
	}
	require.NoError(t, f.bounties.Create(context.Background(), bounty))
	return bounty
}

func (f *fixture) status(t *testing.T, bountyId string) model.BountyStatus {
	t.Helper()
	bounty, err := f.bounties.GetByBountyId(context.Background(), bountyId)
	require.NoError(t, err)
	return bounty.Status
}

func sponsorSession() *session.Session {
	return &session.Session{ID: "s-sponsor", GithubID: sponsorID, GithubUsername: "alice"}
}

func strangerSession() *session.Session {
	return &session.Session{ID: "s-stranger", GithubID: strangerID, GithubUsername: "mallory"}
}

var errRPC = errors.New("dial tcp: connection refused")
