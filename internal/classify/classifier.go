package classify

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"profiler/pkg/models"
)

// CodeChecker 合约代码查询接口（分类器唯一的外部依赖，懒求值）
type CodeChecker interface {
	CodeAt(ctx context.Context, address string) ([]byte, error)
}

// Outcome 单笔交易的分类结果
type Outcome struct {
	Category     models.Category
	Counterparty string // 代币/合约地址，用于top-N统计，可为空
}

// Classifier 交易分类器
// 合约代码查询结果按地址缓存，整个运行期内同一地址只查询一次
type Classifier struct {
	skipContractCheck bool
	checker           CodeChecker
	contractCache     map[string]bool
	logger            *logrus.Logger
}

// NewClassifier 创建交易分类器
func NewClassifier(checker CodeChecker, skipContractCheck bool, logger *logrus.Logger) *Classifier {
	return &Classifier{
		skipContractCheck: skipContractCheck,
		checker:           checker,
		contractCache:     make(map[string]bool),
		logger:            logger,
	}
}

// Classify 对单笔交易分类，首个匹配的规则生效：
//  1. 无接收地址 => 合约创建
//  2. 日志判定为单一代币标准 => 对应的代币转账类别，对手方为主导地址
//  3. 日志判定为混合 => 混合代币活动
//  4. 无代币日志且交易金额大于0 => ETH转账
//  5. 无代币日志、金额为0且跳过合约检查 => 其他合约调用（性能/精度权衡）
//  6. 否则按接收方是否存在合约代码区分合约调用与EOA调用
func (c *Classifier) Classify(ctx context.Context, tx *models.Transaction, receipt *models.Receipt) Outcome {
	if tx.IsContractCreation() {
		return Outcome{Category: models.CategoryContractCreation}
	}

	var logs []*models.TransactionLog
	if receipt != nil {
		logs = receipt.Logs
	}

	verdict, dominant := ClassifyLogs(logs)
	switch verdict {
	case VerdictERC20:
		return Outcome{Category: models.CategoryERC20Transfer, Counterparty: dominant}
	case VerdictERC721:
		return Outcome{Category: models.CategoryERC721Transfer, Counterparty: dominant}
	case VerdictERC1155:
		return Outcome{Category: models.CategoryERC1155Transfer, Counterparty: dominant}
	case VerdictMixed:
		return Outcome{Category: models.CategoryMixedTokenActivity, Counterparty: dominant}
	}

	if tx.Value != nil && tx.Value.Sign() > 0 {
		return Outcome{Category: models.CategoryEthTransfer}
	}

	if c.skipContractCheck {
		// 不区分合约与EOA，直接按合约调用计
		return Outcome{Category: models.CategoryOtherContractCall}
	}

	if c.isContract(ctx, tx.To) {
		return Outcome{Category: models.CategoryOtherContractCall}
	}
	return Outcome{Category: models.CategoryOtherEOACall}
}

// isContract 查询接收方是否为合约（带缓存）
// 查询失败按"非合约"处理（fail-closed的尽力而为策略）
func (c *Classifier) isContract(ctx context.Context, address string) bool {
	addr := strings.ToLower(address)

	if cached, exists := c.contractCache[addr]; exists {
		return cached
	}

	result := false
	if c.checker != nil {
		code, err := c.checker.CodeAt(ctx, addr)
		if err != nil {
			c.logger.Debugf("查询地址 %s 的合约代码失败，按EOA处理: %v", addr, err)
		} else {
			result = len(code) > 0 && !isZeroCode(code)
		}
	}

	c.contractCache[addr] = result
	return result
}

// isZeroCode 单字节0x00的占位代码视为无代码
func isZeroCode(code []byte) bool {
	return len(code) == 1 && code[0] == 0x00
}

// CacheSize 当前合约缓存条目数
func (c *Classifier) CacheSize() int {
	return len(c.contractCache)
}
