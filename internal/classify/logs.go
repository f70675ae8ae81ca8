package classify

import (
	"strings"

	"profiler/pkg/models"
)

// TokenVerdict 日志层面的代币活动判定
type TokenVerdict int

const (
	VerdictNone    TokenVerdict = iota // 无代币相关日志
	VerdictERC20                       // 仅ERC20转账
	VerdictERC721                      // 仅ERC721转账
	VerdictERC1155                     // 仅ERC1155转账
	VerdictMixed                       // 多种代币标准混合
)

// String 返回判定的字符串表示
func (v TokenVerdict) String() string {
	switch v {
	case VerdictERC20:
		return "erc20"
	case VerdictERC721:
		return "erc721"
	case VerdictERC1155:
		return "erc1155"
	case VerdictMixed:
		return "mixed"
	default:
		return "none"
	}
}

// ClassifyLogs 根据收据日志判定代币活动类型及主导地址
// 纯函数，无I/O无副作用：
//   - Transfer签名且数据负载非空 => ERC20计数，负载为空 => ERC721计数
//   - TransferSingle/TransferBatch签名 => ERC1155计数
//   - 主导地址为出现次数最高的发出合约地址，计数相同时按首次出现顺序取先者
func ClassifyLogs(logs []*models.TransactionLog) (TokenVerdict, string) {
	var erc20Count, erc721Count, erc1155Count int

	// 各发出地址的出现次数，firstSeen记录首次出现顺序用于平局判定
	occurrences := make(map[string]int)
	firstSeen := make([]string, 0)

	for _, log := range logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}

		topic0 := strings.ToLower(log.Topics[0])
		addr := strings.ToLower(log.Address)

		switch topic0 {
		case SigTransfer:
			if log.HasData() {
				erc20Count++
			} else {
				erc721Count++
			}
		case SigTransferSingle, SigTransferBatch:
			erc1155Count++
		default:
			continue
		}

		if addr != "" {
			if _, exists := occurrences[addr]; !exists {
				firstSeen = append(firstSeen, addr)
			}
			occurrences[addr]++
		}
	}

	// 主导地址：最高计数，首次出现顺序打破平局
	dominant := ""
	best := 0
	for _, addr := range firstSeen {
		if occurrences[addr] > best {
			best = occurrences[addr]
			dominant = addr
		}
	}

	// 判定：恰好一种标准计数大于0 => 该标准；多种 => 混合；全零 => 无
	switch {
	case erc20Count > 0 && erc721Count == 0 && erc1155Count == 0:
		return VerdictERC20, dominant
	case erc721Count > 0 && erc20Count == 0 && erc1155Count == 0:
		return VerdictERC721, dominant
	case erc1155Count > 0 && erc20Count == 0 && erc721Count == 0:
		return VerdictERC1155, dominant
	case erc20Count > 0 || erc721Count > 0 || erc1155Count > 0:
		return VerdictMixed, dominant
	default:
		return VerdictNone, ""
	}
}
