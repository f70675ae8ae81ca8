package profiler

import (
	"context"
	"sync"

	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
)

// TxFetch 单笔交易的收据获取结果
type TxFetch struct {
	Tx      *models.Transaction
	Receipt *models.Receipt
	Err     error
}

// ReceiptScheduler 收据获取调度器
// 单个区块内用固定数量的worker并发取收据，结果按交易在区块内的
// 顺序返回；折叠始终由调用方单线程执行，并发只存在于网络IO上
type ReceiptScheduler struct {
	client  LedgerClient
	workers int
	logger  *logrus.Logger
}

// NewReceiptScheduler 创建收据调度器
func NewReceiptScheduler(client LedgerClient, workers int, logger *logrus.Logger) *ReceiptScheduler {
	if workers <= 0 {
		workers = 1
	}
	return &ReceiptScheduler{
		client:  client,
		workers: workers,
		logger:  logger,
	}
}

// FetchReceipts 并发获取一个区块所有交易的收据
// 上下文取消时不再派发新请求，已在途的请求等它们返回（在途排空），
// 保证返回的切片与输入交易一一对应
func (s *ReceiptScheduler) FetchReceipts(ctx context.Context, txs []*models.Transaction) []TxFetch {
	results := make([]TxFetch, len(txs))
	if len(txs) == 0 {
		return results
	}

	type job struct {
		index int
		tx    *models.Transaction
	}

	jobs := make(chan job)
	var wg sync.WaitGroup

	workers := s.workers
	if workers > len(txs) {
		workers = len(txs)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				receipt, err := s.client.GetReceipt(ctx, j.tx.Hash)
				results[j.index] = TxFetch{Tx: j.tx, Receipt: receipt, Err: err}
			}
		}()
	}

	// 派发任务，上下文取消后停止派发并把剩余交易标记为取消
	dispatched := 0
dispatch:
	for i, tx := range txs {
		select {
		case jobs <- job{index: i, tx: tx}:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	// 未派发的交易统一标记取消错误
	if dispatched < len(txs) {
		for i := range results {
			if results[i].Tx == nil {
				results[i] = TxFetch{Tx: txs[i], Err: ctx.Err()}
			}
		}
		s.logger.Warnf("收据获取被取消，%d/%d 笔交易未派发", len(txs)-dispatched, len(txs))
	}

	return results
}
