package models

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// Block 区块数据模型（剖析所需的最小字段集）
type Block struct {
	Number           uint64    `json:"block_number"`
	Hash             string    `json:"hash"`
	Timestamp        time.Time `json:"timestamp"`
	GasLimit         uint64    `json:"gas_limit"`
	GasUsed          uint64    `json:"gas_used"`
	TransactionCount int       `json:"transaction_count"`
}

// FromEthereumBlock 从以太坊区块转换为内部模型
func (b *Block) FromEthereumBlock(block *types.Block) {
	if block == nil {
		return
	}

	b.Number = block.NumberU64()
	b.Hash = block.Hash().Hex()
	b.Timestamp = time.Unix(int64(block.Time()), 0)
	b.GasLimit = block.GasLimit()
	b.GasUsed = block.GasUsed()
	b.TransactionCount = len(block.Transactions())
}

// BlockRow 按区块输出的CSV行（列顺序与表头保持一致）
type BlockRow struct {
	BlockNumber    uint64             `json:"block_number"`
	Timestamp      int64              `json:"timestamp"`
	TxCount        int                `json:"tx_count"`
	CategoryCounts map[Category]uint64 `json:"category_counts"`
	BlockGasUsed   uint64             `json:"block_gas_used"`
	BlockGasLimit  uint64             `json:"block_gas_limit"`
}
