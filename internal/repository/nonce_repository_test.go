package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/repository/repotest"
)

func TestNonceRepository_ConsumeOnce(t *testing.T) {
	repo := repository.NewNonceRepository(repotest.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &model.SiweNonce{Nonce: "n1", SessionId: "s1", ExpiresAt: now.Add(time.Hour)}))

	ok, err := repo.AttachMessage(ctx, "n1", "s1", "hello", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetActive(ctx, "n1", "s1", now)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Message)

	// 其他会话不能使用
	ok, err = repo.Consume(ctx, "n1", "s2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Consume(ctx, "n1", "s1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Consume(ctx, "n1", "s1", now)
	require.NoError(t, err)
	assert.False(t, ok, "second consume must fail")

	_, err = repo.GetActive(ctx, "n1", "s1", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNonceRepository_Expired(t *testing.T) {
	repo := repository.NewNonceRepository(repotest.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &model.SiweNonce{Nonce: "old", SessionId: "s1", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Create(ctx, &model.SiweNonce{Nonce: "new", SessionId: "s1", ExpiresAt: now.Add(time.Hour)}))

	ok, err := repo.Consume(ctx, "old", "s1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetActive(ctx, "new", "s1", now)
	assert.NoError(t, err)
}

func TestNonceRepository_ConcurrentConsume(t *testing.T) {
	repo := repository.NewNonceRepository(repotest.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &model.SiweNonce{Nonce: "n1", SessionId: "s1", ExpiresAt: now.Add(time.Hour)}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Consume(ctx, "n1", "s1", now)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
