package models

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction 交易数据模型
// To为空字符串表示合约创建交易（链上to字段为空）
type Transaction struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"block_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       *big.Int  `json:"value"`
	GasPrice    *big.Int  `json:"gas_price"`
	Input       string    `json:"input"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsContractCreation 是否为合约创建交易
func (t *Transaction) IsContractCreation() bool {
	return t.To == ""
}

// FromEthereumTransaction 从以太坊交易转换为内部模型
func (t *Transaction) FromEthereumTransaction(tx *types.Transaction, blockNumber uint64, blockTime uint64) {
	if tx == nil {
		return
	}

	t.Hash = tx.Hash().Hex()
	t.BlockNumber = blockNumber
	t.Value = tx.Value()
	t.GasPrice = tx.GasPrice()
	t.Input = common.Bytes2Hex(tx.Data())
	t.Timestamp = time.Unix(int64(blockTime), 0)

	if tx.To() != nil {
		t.To = strings.ToLower(tx.To().Hex())
	}

	// 根据交易类型选择签名者恢复发送地址，失败时留空（不影响分类）
	var from common.Address
	var err error
	switch tx.Type() {
	case types.LegacyTxType:
		from, err = types.Sender(types.NewEIP155Signer(tx.ChainId()), tx)
	case types.AccessListTxType:
		from, err = types.Sender(types.NewEIP2930Signer(tx.ChainId()), tx)
	case types.DynamicFeeTxType:
		from, err = types.Sender(types.NewLondonSigner(tx.ChainId()), tx)
	case types.BlobTxType:
		from, err = types.Sender(types.NewCancunSigner(tx.ChainId()), tx)
	default:
		from, err = types.Sender(types.NewPragueSigner(tx.ChainId()), tx)
	}
	if err == nil {
		t.From = strings.ToLower(from.Hex())
	}
}
