package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
)

// NonceCleanupJob 清理过期或已使用的签名随机数
type NonceCleanupJob struct {
	nonces *repository.NonceRepository
	now    func() time.Time
}

// NewNonceCleanupJob 创建随机数清理任务
func NewNonceCleanupJob(nonces *repository.NonceRepository) *NonceCleanupJob {
	return &NonceCleanupJob{
		nonces: nonces,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetName 获取任务名称
func (j *NonceCleanupJob) GetName() string {
	return "siwe_nonce_cleanup"
}

// GetSchedule 每小时执行一次
func (j *NonceCleanupJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Hour)
}

// Execute 执行任务
func (j *NonceCleanupJob) Execute() {
	deleted, err := j.nonces.DeleteExpired(context.Background(), j.now())
	if err != nil {
		logger.Error("Failed to clean up nonces: %v", err)
		return
	}
	if deleted > 0 {
		logger.Info("Removed %d expired or used nonces", deleted)
	}
}
