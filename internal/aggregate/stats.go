package aggregate

import (
	"math/big"
	"strings"

	"profiler/pkg/models"
)

// TxOutcome 单笔交易分类后折叠进汇总的输入
type TxOutcome struct {
	Category       models.Category
	GasUsed        uint64
	GasPriceWei    *big.Int
	ValueWei       *big.Int
	Sender         string
	Recipient      string
	Counterparty   string // 代币/合约主导地址，可为空
	MethodSelector string // 合约调用的4字节方法选择器，可为空
}

// ChunkAggregator 单个区块子范围的累加器
// 仅由单一折叠路径访问，无需加锁；类别统计对折叠顺序满足交换律
type ChunkAggregator struct {
	startBlock uint64
	endBlock   uint64

	stats        map[models.Category]*models.CategoryStats
	uniqueFrom   map[string]struct{}
	uniqueTo     map[string]struct{}
	topContracts *Counter
	topTokens    *Counter
	topMethods   *Counter

	totalWei    *big.Int
	internalWei *big.Int
	totalTx     uint64
	dropped     uint64
}

// NewChunkAggregator 创建分块累加器
func NewChunkAggregator(startBlock, endBlock uint64) *ChunkAggregator {
	return &ChunkAggregator{
		startBlock:   startBlock,
		endBlock:     endBlock,
		stats:        make(map[models.Category]*models.CategoryStats),
		uniqueFrom:   make(map[string]struct{}),
		uniqueTo:     make(map[string]struct{}),
		topContracts: NewCounter(),
		topTokens:    NewCounter(),
		topMethods:   NewCounter(),
		totalWei:     new(big.Int),
		internalWei:  new(big.Int),
	}
}

// Fold 将一笔已分类交易折叠进汇总（精确整数累加）
func (a *ChunkAggregator) Fold(o *TxOutcome) {
	stats, exists := a.stats[o.Category]
	if !exists {
		stats = models.NewCategoryStats()
		a.stats[o.Category] = stats
	}

	stats.Count++
	stats.GasUsed += o.GasUsed
	if o.GasPriceWei != nil {
		stats.GasPriceWeiSum.Add(stats.GasPriceWeiSum, o.GasPriceWei)
	}
	if o.ValueWei != nil {
		stats.ValueWeiSum.Add(stats.ValueWeiSum, o.ValueWei)
		a.totalWei.Add(a.totalWei, o.ValueWei)
	}

	if o.Sender != "" {
		a.uniqueFrom[strings.ToLower(o.Sender)] = struct{}{}
	}
	if o.Recipient != "" {
		recipient := strings.ToLower(o.Recipient)
		a.uniqueTo[recipient] = struct{}{}
		a.topContracts.Add(recipient, 1)
	}
	if o.Counterparty != "" {
		a.topTokens.Add(strings.ToLower(o.Counterparty), 1)
	}
	if o.MethodSelector != "" {
		a.topMethods.Add(strings.ToLower(o.MethodSelector), 1)
	}

	a.totalTx++
}

// RecordDropped 记录一次收据获取失败（该交易不计入任何统计）
func (a *ChunkAggregator) RecordDropped() {
	a.dropped++
}

// AddInternalValue 累加追踪到的内部转账金额
func (a *ChunkAggregator) AddInternalValue(wei *big.Int) {
	if wei != nil {
		a.internalWei.Add(a.internalWei, wei)
	}
}

// TotalTx 当前已折叠的交易总数（用于交易上限检查）
func (a *ChunkAggregator) TotalTx() uint64 {
	return a.totalTx
}

// SetEndBlock 更新实际覆盖的结束区块
// 交易上限提前截断时，汇总须报告真实的缩减范围
func (a *ChunkAggregator) SetEndBlock(blockNumber uint64) {
	a.endBlock = blockNumber
}

// Close 定稿并生成分块汇总，此后累加器不应再被使用
func (a *ChunkAggregator) Close() *models.ChunkSummary {
	txTypes := make(map[string]*models.CategoryReport, len(a.stats))
	for category, stats := range a.stats {
		txTypes[category.String()] = &models.CategoryReport{
			Count:           stats.Count,
			GasUsed:         stats.GasUsed,
			AvgGasPriceGwei: AvgGasPriceGwei(stats.GasPriceWeiSum, stats.Count),
			EthValueSum:     WeiToEth(stats.ValueWeiSum),
		}
	}

	blockCount := uint64(0)
	if a.endBlock >= a.startBlock {
		blockCount = a.endBlock - a.startBlock + 1
	}

	return &models.ChunkSummary{
		StartBlock:      a.startBlock,
		EndBlock:        a.endBlock,
		BlockCount:      blockCount,
		TotalTx:         a.totalTx,
		UniqueSenders:   int64(len(a.uniqueFrom)),
		UniqueReceivers: int64(len(a.uniqueTo)),
		TotalEth:        WeiToEth(a.totalWei),
		TotalInternal:   WeiToEth(a.internalWei),
		TxTypes:         txTypes,
		TopContracts:    a.topContracts.MostCommon(TopN),
		TopTokens:       a.topTokens.MostCommon(TopN),
		TopMethods:      a.topMethods.MostCommon(TopN),
		DroppedReceipts: a.dropped,
	}
}
