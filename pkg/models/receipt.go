package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt 交易收据模型，与交易一一对应
type Receipt struct {
	TransactionHash string            `json:"transaction_hash"`
	GasUsed         uint64            `json:"gas_used"`
	Logs            []*TransactionLog `json:"logs"`
}

// TransactionLog 交易日志模型
// Topics[0]（存在时）为事件签名的topic哈希；Data为空表示不携带金额的事件
type TransactionLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// HasData 日志是否携带非空数据负载
func (l *TransactionLog) HasData() bool {
	return l.Data != "" && l.Data != "0x"
}

// FromEthereumReceipt 从以太坊收据转换为内部模型
func (r *Receipt) FromEthereumReceipt(receipt *types.Receipt) {
	if receipt == nil {
		return
	}

	r.TransactionHash = receipt.TxHash.Hex()
	r.GasUsed = receipt.GasUsed
	r.Logs = make([]*TransactionLog, 0, len(receipt.Logs))

	for _, log := range receipt.Logs {
		logModel := &TransactionLog{}
		logModel.FromEthereumLog(log)
		r.Logs = append(r.Logs, logModel)
	}
}

// FromEthereumLog 从以太坊日志转换为内部模型
func (l *TransactionLog) FromEthereumLog(log *types.Log) {
	if log == nil {
		return
	}

	l.Address = strings.ToLower(log.Address.Hex())
	l.Topics = make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		l.Topics = append(l.Topics, strings.ToLower(topic.Hex()))
	}
	if len(log.Data) > 0 {
		l.Data = "0x" + common.Bytes2Hex(log.Data)
	}
}
