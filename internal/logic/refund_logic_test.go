package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

func TestCustodialRefund_Success(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)

	res, err := f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, testTxHash, res.TxHash)
	assert.Equal(t, uint64(100), res.BlockNumber)
	assert.Equal(t, 1, f.chain.submitCount())

	got, err := f.bounties.GetByBountyId(context.Background(), b.BountyId)
	require.NoError(t, err)
	assert.Equal(t, model.BountyStatusRefunded, got.Status)
	assert.Equal(t, testTxHash, got.SettledTxHash)
}

func TestCustodialRefund_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		sess    *session.Session
		mutate  func(*model.Bounty)
		prepare func(*fakeChain)
		want    apperr.Kind
	}{
		{"anonymous", &session.Session{}, nil, nil, apperr.KindUnauthenticated},
		{"other sponsor", strangerSession(), nil, nil, apperr.KindForbidden},
		{"already canceled", sponsorSession(), func(b *model.Bounty) { b.Status = model.BountyStatusCanceled }, nil, apperr.KindStateConflict},
		{"no network", sponsorSession(), func(b *model.Bounty) { b.Network = "" }, nil, apperr.KindValidation},
		{"deadline ahead", sponsorSession(), func(b *model.Bounty) { b.Deadline = time.Now().Add(time.Hour).Unix() }, nil, apperr.KindPreconditionFailed},
		{"chain unreachable", sponsorSession(), nil, func(c *fakeChain) { c.readErr = errRPC }, apperr.KindUpstream},
		{"resolved on chain", sponsorSession(), nil, func(c *fakeChain) { c.status = chain.StatusCodeResolved }, apperr.KindPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutate []func(*model.Bounty)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			b := f.seed(t, 1, mutate...)
			if tt.prepare != nil {
				tt.prepare(f.chain)
			}
			before := f.status(t, b.BountyId)

			_, err := f.refunds.CustodialRefund(context.Background(), tt.sess, b.BountyId)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.Zero(t, f.chain.submitCount(), "no transaction may be sent")
			assert.Equal(t, before, f.status(t, b.BountyId))
		})
	}
}

func TestCustodialRefund_SubmissionFailureLeavesBountyOpen(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.submitErr = errors.New("insufficient funds for gas")

	res, err := f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))
}

func TestCustodialRefund_SentButUnconfirmed(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.submitErr = context.DeadlineExceeded
	f.chain.submitTx = &chain.TxResult{TxHash: testTxHash}

	_, err := f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Contains(t, err.Error(), testTxHash)
	assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))
}

func TestCustodialRefund_NoSigner(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.submitErr = fmt.Errorf("%w: %s", chain.ErrNoSigner, testNetwork)

	_, err := f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
	assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err))
	assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))
}

func TestCustodialRefund_RecoversOnChainRefunded(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.setStatus(chain.StatusCodeRefunded)

	res, err := f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRefunded)
	assert.Zero(t, f.chain.submitCount())
	assert.Equal(t, model.BountyStatusRefunded, f.status(t, b.BountyId))
}

func TestCustodialRefund_ConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)

	const requests = 2
	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.refunds.CustodialRefund(context.Background(), sponsorSession(), b.BountyId)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.IsKind(err, apperr.KindStateConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, model.BountyStatusRefunded, f.status(t, b.BountyId))
}

// gateReader 让前 n 次读取互相等待，保证并发请求都读到 open
type gateReader struct {
	inner   *fakeChain
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
}

func newGateReader(inner *fakeChain, n int) *gateReader {
	return &gateReader{inner: inner, n: n, release: make(chan struct{})}
}

func (g *gateReader) ReadBounty(ctx context.Context, network, bountyId string) (*chain.OnChainBounty, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.n {
		close(g.release)
	}
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.ReadBounty(ctx, network, bountyId)
}

func TestCustodialRefund_LoserRevertedIsConflict(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)

	const requests = 2
	gate := newGateReader(f.chain, requests)
	reconciler := reconcile.NewService(gate)
	machine := NewBountyLogic(f.bounties, reconciler, f.chain)
	refunds := NewRefundLogic(machine, reconciler, f.chain)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = refunds.CustodialRefund(ctx, sponsorSession(), b.BountyId)
		}(i)
	}
	wg.Wait()

	// 两个请求都提交了交易，后到的一笔被合约回滚
	assert.Equal(t, requests, f.chain.submitCount())

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.IsKind(err, apperr.KindStateConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, model.BountyStatusRefunded, f.status(t, b.BountyId))
}

func TestConfirmRefund(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.setStatus(chain.StatusCodeRefunded)

	res, err := f.refunds.ConfirmRefund(context.Background(), sponsorSession(), b.BountyId, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, &RefundResult{Success: true, TxHash: testTxHash}, res)

	got, err := f.bounties.GetByBountyId(context.Background(), b.BountyId)
	require.NoError(t, err)
	assert.Equal(t, model.BountyStatusRefunded, got.Status)
	assert.Equal(t, testTxHash, got.SettledTxHash)

	// 已退款后不再接受确认
	_, err = f.refunds.ConfirmRefund(context.Background(), sponsorSession(), b.BountyId, testTxHash)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
}

func TestConfirmRefund_ChainNotRefunded(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)

	_, err := f.refunds.ConfirmRefund(context.Background(), sponsorSession(), b.BountyId, testTxHash)
	assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err))
	assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))
}

func TestConfirmRefund_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		sess    *session.Session
		txHash  string
		network string
		want    apperr.Kind
	}{
		{"missing hash", sponsorSession(), "", testNetwork, apperr.KindValidation},
		{"malformed hash", sponsorSession(), "0xabc", testNetwork, apperr.KindValidation},
		{"anonymous", &session.Session{}, testTxHash, testNetwork, apperr.KindUnauthenticated},
		{"other sponsor", strangerSession(), testTxHash, testNetwork, apperr.KindForbidden},
		{"no network", sponsorSession(), testTxHash, "", apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.seed(t, 1, func(b *model.Bounty) { b.Network = tt.network })
			f.chain.setStatus(chain.StatusCodeRefunded)

			_, err := f.refunds.ConfirmRefund(context.Background(), tt.sess, b.BountyId, tt.txHash)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))
		})
	}
}

func TestConfirmRefund_ConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	f.chain.setStatus(chain.StatusCodeRefunded)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.refunds.ConfirmRefund(context.Background(), sponsorSession(), b.BountyId, testTxHash)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.IsKind(err, apperr.KindStateConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestSelfReportRefund(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)
	// 自报路径不读链
	f.chain.readErr = errRPC

	res, err := f.refunds.SelfReportRefund(context.Background(), sponsorSession(), b.BountyId, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyRefunded)
	assert.Equal(t, model.BountyStatusRefunded, f.status(t, b.BountyId))

	// 重复调用幂等
	res, err = f.refunds.SelfReportRefund(context.Background(), sponsorSession(), b.BountyId, testTxHash)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyRefunded)
}

func TestSelfReportRefund_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		sess   *session.Session
		status model.BountyStatus
		txHash string
		want   apperr.Kind
	}{
		{"anonymous", &session.Session{}, model.BountyStatusOpen, "", apperr.KindUnauthenticated},
		{"other sponsor", strangerSession(), model.BountyStatusOpen, "", apperr.KindForbidden},
		{"canceled", sponsorSession(), model.BountyStatusCanceled, "", apperr.KindStateConflict},
		{"resolved", sponsorSession(), model.BountyStatusResolved, "", apperr.KindStateConflict},
		{"malformed hash", sponsorSession(), model.BountyStatusOpen, "nope", apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.seed(t, 1, func(b *model.Bounty) { b.Status = tt.status })

			_, err := f.refunds.SelfReportRefund(context.Background(), tt.sess, b.BountyId, tt.txHash)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.Equal(t, tt.status, f.status(t, b.BountyId))
		})
	}
}

func TestSelfReportRefund_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.refunds.SelfReportRefund(context.Background(), sponsorSession(), testBountyId(5), "")
	assert.ErrorIs(t, err, apperr.ErrBountyNotFound)
}

func TestConfirmCancel(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t, 1)

	_, err := f.refunds.ConfirmCancel(context.Background(), sponsorSession(), b.BountyId, "")
	assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err))
	assert.Equal(t, model.BountyStatusOpen, f.status(t, b.BountyId))

	f.chain.setStatus(chain.StatusCodeCanceled)
	res, err := f.refunds.ConfirmCancel(context.Background(), sponsorSession(), b.BountyId, testTxHash)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.BountyStatusCanceled, f.status(t, b.BountyId))

	_, err = f.refunds.ConfirmCancel(context.Background(), strangerSession(), b.BountyId, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
