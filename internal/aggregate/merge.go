package aggregate

import (
	"fmt"
	"math/big"

	"profiler/pkg/models"
)

// UniqueCountUnreliable 跨分块合并后去重地址数的哨兵值
// 分块内去重不跨分块边界合并，多分块运行时该计数被低估，
// 以-1标记而非静默给出错误数字（文档化的既有限制）
const UniqueCountUnreliable = -1

// mergedStats 合并过程中的单类别累加状态
type mergedStats struct {
	count          uint64
	gasUsed        uint64
	gasPriceWeiSum *big.Int // 由已舍入的均值重建，存在有界舍入误差
	valueWeiSum    *big.Int
}

// MergeSummaries 将按序排列、互不重叠且连续的分块汇总合并为整体汇总
// 计数、gas、金额按精确整数加法合并；平均gas价格由各分块
// 已舍入的均值乘以计数重建后重新平均（可接受的近似）
func MergeSummaries(chunks []*models.ChunkSummary) (*models.OverallSummary, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("没有可合并的分块汇总")
	}

	byCategory := make(map[string]*mergedStats)
	topContracts := NewCounter()
	topTokens := NewCounter()
	topMethods := NewCounter()

	totalWei := new(big.Int)
	internalWei := new(big.Int)
	var totalTx, blockCount, dropped uint64

	for _, chunk := range chunks {
		totalTx += chunk.TotalTx
		blockCount += chunk.BlockCount
		dropped += chunk.DroppedReceipts

		chunkWei, err := EthToWei(chunk.TotalEth)
		if err != nil {
			return nil, fmt.Errorf("解析分块 [%d-%d] 的ETH总额失败: %w", chunk.StartBlock, chunk.EndBlock, err)
		}
		totalWei.Add(totalWei, chunkWei)

		chunkInternal, err := EthToWei(chunk.TotalInternal)
		if err != nil {
			return nil, fmt.Errorf("解析分块 [%d-%d] 的内部转账总额失败: %w", chunk.StartBlock, chunk.EndBlock, err)
		}
		internalWei.Add(internalWei, chunkInternal)

		for name, report := range chunk.TxTypes {
			stats, exists := byCategory[name]
			if !exists {
				stats = &mergedStats{
					gasPriceWeiSum: new(big.Int),
					valueWeiSum:    new(big.Int),
				}
				byCategory[name] = stats
			}

			stats.count += report.Count
			stats.gasUsed += report.GasUsed

			reconstructed, err := GweiAvgToWeiSum(report.AvgGasPriceGwei, report.Count)
			if err != nil {
				return nil, fmt.Errorf("重建类别 %s 的gas价格总和失败: %w", name, err)
			}
			stats.gasPriceWeiSum.Add(stats.gasPriceWeiSum, reconstructed)

			valueWei, err := EthToWei(report.EthValueSum)
			if err != nil {
				return nil, fmt.Errorf("解析类别 %s 的金额总和失败: %w", name, err)
			}
			stats.valueWeiSum.Add(stats.valueWeiSum, valueWei)
		}

		// top计数器按键求和合并，合并后重新选取前20
		for _, entry := range chunk.TopContracts {
			topContracts.Add(entry.Address, entry.Count)
		}
		for _, entry := range chunk.TopTokens {
			topTokens.Add(entry.Address, entry.Count)
		}
		for _, entry := range chunk.TopMethods {
			topMethods.Add(entry.Address, entry.Count)
		}
	}

	txTypes := make(map[string]*models.CategoryReport, len(byCategory))
	for name, stats := range byCategory {
		txTypes[name] = &models.CategoryReport{
			Count:           stats.count,
			GasUsed:         stats.gasUsed,
			AvgGasPriceGwei: AvgGasPriceGwei(stats.gasPriceWeiSum, stats.count),
			EthValueSum:     WeiToEth(stats.valueWeiSum),
		}
	}

	// 单分块时去重计数可直接透传；多分块时仅为分块内去重，标记为不可靠
	uniqueSenders := int64(UniqueCountUnreliable)
	uniqueReceivers := int64(UniqueCountUnreliable)
	if len(chunks) == 1 {
		uniqueSenders = chunks[0].UniqueSenders
		uniqueReceivers = chunks[0].UniqueReceivers
	}

	return &models.OverallSummary{
		StartBlock:      chunks[0].StartBlock,
		EndBlock:        chunks[len(chunks)-1].EndBlock,
		BlockCount:      blockCount,
		TotalTx:         totalTx,
		UniqueSenders:   uniqueSenders,
		UniqueReceivers: uniqueReceivers,
		TotalEth:        WeiToEth(totalWei),
		TotalInternal:   WeiToEth(internalWei),
		TxTypes:         txTypes,
		TopContracts:    topContracts.MostCommon(TopN),
		TopTokens:       topTokens.MostCommon(TopN),
		TopMethods:      topMethods.MostCommon(TopN),
		DroppedReceipts: dropped,
	}, nil
}
