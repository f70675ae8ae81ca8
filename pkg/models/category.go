package models

import (
	"encoding/json"
	"fmt"
)

// Category 交易行为类别（封闭枚举）
type Category int

const (
	CategoryContractCreation Category = iota // 合约创建 (to为空)
	CategoryEthTransfer                      // 纯ETH转账
	CategoryERC20Transfer                    // ERC20代币转账
	CategoryERC721Transfer                   // ERC721 NFT转账
	CategoryERC1155Transfer                  // ERC1155代币转账
	CategoryMixedTokenActivity               // 单笔交易内混合多种代币标准
	CategoryOtherContractCall                // 其他合约调用
	CategoryOtherEOACall                     // 对外部账户的其他调用
)

// 类别名称映射（与输出JSON的键保持一致）
var categoryNames = map[Category]string{
	CategoryContractCreation:   "contract_creation",
	CategoryEthTransfer:        "eth_transfer",
	CategoryERC20Transfer:      "erc20_transfer",
	CategoryERC721Transfer:     "erc721_transfer",
	CategoryERC1155Transfer:    "erc1155_transfer",
	CategoryMixedTokenActivity: "mixed_token_activity",
	CategoryOtherContractCall:  "other_contract_call",
	CategoryOtherEOACall:       "other_eoa_call",
}

// AllCategories 所有类别（按CSV列顺序，与原始表头保持一致）
var AllCategories = []Category{
	CategoryEthTransfer,
	CategoryContractCreation,
	CategoryERC20Transfer,
	CategoryERC721Transfer,
	CategoryERC1155Transfer,
	CategoryOtherContractCall,
	CategoryMixedTokenActivity,
	CategoryOtherEOACall,
}

// String 返回类别的字符串表示
func (c Category) String() string {
	if name, exists := categoryNames[c]; exists {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// MarshalJSON 序列化为类别名称
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON 从类别名称反序列化
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for cat, n := range categoryNames {
		if n == name {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("未知的交易类别: %s", name)
}
