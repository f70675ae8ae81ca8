package models

import "math/big"

// CategoryStats 单一类别的累计统计
// 仅由单一折叠路径逐笔累加，不存在并发读写
type CategoryStats struct {
	Count          uint64   `json:"count"`
	GasUsed        uint64   `json:"gas_used"`
	GasPriceWeiSum *big.Int `json:"gas_price_wei_sum"`
	ValueWeiSum    *big.Int `json:"value_wei_sum"`
}

// NewCategoryStats 创建类别统计
func NewCategoryStats() *CategoryStats {
	return &CategoryStats{
		GasPriceWeiSum: new(big.Int),
		ValueWeiSum:    new(big.Int),
	}
}

// CategoryReport 类别统计的输出形式
// 平均gas价格为定点小数字符串（gwei，4位小数），避免浮点漂移
type CategoryReport struct {
	Count           uint64 `json:"count"`
	GasUsed         uint64 `json:"gas_used"`
	AvgGasPriceGwei string `json:"avg_gas_price_gwei"`
	EthValueSum     string `json:"eth_value_sum_eth"`
}

// AddressCount 地址及其出现次数（top-N列表元素）
type AddressCount struct {
	Address string `json:"address"`
	Count   uint64 `json:"count"`
}

// ChunkSummary 单个区块子范围的汇总
// 范围内所有区块处理完毕后定稿，之后不再修改
type ChunkSummary struct {
	StartBlock      uint64                     `json:"start_block"`
	EndBlock        uint64                     `json:"end_block"`
	BlockCount      uint64                     `json:"block_count"`
	TotalTx         uint64                     `json:"total_tx"`
	UniqueSenders   int64                      `json:"unique_senders"`
	UniqueReceivers int64                      `json:"unique_receivers"`
	TotalEth        string                     `json:"total_eth_transferred_eth"`
	TotalInternal   string                     `json:"total_internal_value_eth"`
	TxTypes         map[string]*CategoryReport `json:"tx_types"`
	TopContracts    []AddressCount             `json:"top_contracts_by_tx"`
	TopTokens       []AddressCount             `json:"top_tokens_by_events"`
	TopMethods      []AddressCount             `json:"top_method_selectors"`
	DroppedReceipts uint64                     `json:"dropped_receipts"`
}

// Limits 配置回显（用于结果溯源）
type Limits struct {
	TxCap             uint64 `json:"tx_cap"`
	SkipContractCheck bool   `json:"skip_contract_check"`
	Concurrency       int    `json:"concurrency"`
	ChunkSize         uint64 `json:"chunk_size"`
	TraceMode         string `json:"trace_mode"`
}

// OverallSummary 整体汇总，由各分块汇总合并得到
// 跨分块的去重地址数不可靠时以-1哨兵值标记（文档化的既有限制）
type OverallSummary struct {
	StartBlock      uint64                     `json:"start_block"`
	EndBlock        uint64                     `json:"end_block"`
	ChainID         uint64                     `json:"chain_id"`
	BlockCount      uint64                     `json:"block_count"`
	TotalTx         uint64                     `json:"total_tx"`
	UniqueSenders   int64                      `json:"unique_senders"`
	UniqueReceivers int64                      `json:"unique_receivers"`
	TotalEth        string                     `json:"total_eth_transferred_eth"`
	TotalInternal   string                     `json:"total_internal_value_eth"`
	TxTypes         map[string]*CategoryReport `json:"tx_types"`
	TopContracts    []AddressCount             `json:"top_contracts_by_tx"`
	TopTokens       []AddressCount             `json:"top_tokens_by_events"`
	TopMethods      []AddressCount             `json:"top_method_selectors"`
	DroppedReceipts uint64                     `json:"dropped_receipts"`
	Notes           []string                   `json:"notes"`
	Limits          *Limits                    `json:"limits"`
}
