package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/panjf2000/ants/v2"
)

const reconcilePageSize = 100

// BountySyncer 将单个悬赏的数据库状态追平链上终态，由 logic.BountyLogic 实现
type BountySyncer interface {
	SyncFromChain(ctx context.Context, bounty *model.Bounty) (bool, error)
}

// ReconcileReport 一轮对账结果
type ReconcileReport struct {
	Scanned  int64
	Advanced int64
	Failed   int64
}

// BountyReconcileJob 对账任务：扫描进行中的悬赏，链上已退款、已取消或已支付的同步到数据库
type BountyReconcileJob struct {
	bounties *repository.BountyRepository
	syncer   BountySyncer
	config   config.TaskConfig
}

// NewBountyReconcileJob 创建对账任务
func NewBountyReconcileJob(bounties *repository.BountyRepository, syncer BountySyncer, cfg config.TaskConfig) *BountyReconcileJob {
	return &BountyReconcileJob{
		bounties: bounties,
		syncer:   syncer,
		config:   cfg,
	}
}

// GetName 获取任务名称
func (j *BountyReconcileJob) GetName() string {
	return "bounty_reconciler"
}

// GetSchedule 获取调度配置
func (j *BountyReconcileJob) GetSchedule() gocron.JobDefinition {
	interval := j.config.Interval
	if interval <= 0 {
		interval = 300
	}
	return gocron.DurationJob(time.Duration(interval) * time.Second)
}

// Execute 执行任务
func (j *BountyReconcileJob) Execute() {
	logger.Info("Starting bounty reconcile task")

	report, err := j.RunOnce(context.Background())
	if err != nil {
		logger.Error("Bounty reconcile task aborted: %v", err)
		return
	}

	logger.Info("Bounty reconcile task completed: scanned %d, advanced %d, failed %d", report.Scanned, report.Advanced, report.Failed)
}

// RunOnce 分页扫描全部进行中的悬赏，每页交给协程池并发比对
func (j *BountyReconcileJob) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	workers := j.config.Workers
	if workers <= 0 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var scanned, advanced, failed atomic.Int64
	var afterId int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := j.bounties.ListOpenWithNetwork(ctx, afterId, reconcilePageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		var wg sync.WaitGroup
		for i := range page {
			bounty := &page[i]
			wg.Add(1)
			err := pool.Submit(func() {
				defer wg.Done()
				scanned.Add(1)

				changed, err := j.syncer.SyncFromChain(ctx, bounty)
				if err != nil {
					failed.Add(1)
					logger.With(logger.Bounty(bounty.BountyId), logger.Network(bounty.Network)).Warn("Failed to reconcile bounty: %v", err)
					return
				}
				if changed {
					advanced.Add(1)
				}
			})
			if err != nil {
				wg.Done()
				failed.Add(1)
				logger.Error("Failed to submit task to pool: %v", err)
			}
		}
		wg.Wait()

		afterId = page[len(page)-1].Id
		if len(page) < reconcilePageSize {
			break
		}
	}

	return &ReconcileReport{
		Scanned:  scanned.Load(),
		Advanced: advanced.Load(),
		Failed:   failed.Load(),
	}, nil
}
