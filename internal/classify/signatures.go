package classify

import (
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// 代币事件签名的topic哈希（进程级只读，初始化后不再修改）
var (
	// Transfer(address,address,uint256) - ERC20/ERC721共用
	SigTransfer = eventTopic("Transfer(address,address,uint256)")

	// TransferSingle(address,address,address,uint256,uint256) - ERC1155单笔
	SigTransferSingle = eventTopic("TransferSingle(address,address,address,uint256,uint256)")

	// TransferBatch(address,address,address,uint256[],uint256[]) - ERC1155批量
	SigTransferBatch = eventTopic("TransferBatch(address,address,address,uint256[],uint256[])")
)

// EventSignatures 事件名到topic哈希的静态映射
var EventSignatures = map[string]string{
	"Transfer":       SigTransfer,
	"TransferSingle": SigTransferSingle,
	"TransferBatch":  SigTransferBatch,
}

// eventTopic 计算事件签名的topic哈希（小写hex，带0x前缀）
func eventTopic(signature string) string {
	return strings.ToLower(crypto.Keccak256Hash([]byte(signature)).Hex())
}
