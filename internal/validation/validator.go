package validation

import (
	"fmt"
	"regexp"
	"strings"

	"profiler/internal/config"
	"profiler/internal/errors"
	"profiler/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Validator 输入与数据验证器
// 运行参数验证失败是致命错误，链上数据的格式问题只作为警告记录
type Validator struct {
	logger *logrus.Logger
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Errors   []*errors.ProfilerError `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	DataType string                  `json:"data_type"`
}

// NewValidator 创建验证器
func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateRange 验证区块区间
// 起始区块大于结束区块时直接判定失败
func (v *Validator) ValidateRange(startBlock, endBlock uint64) *ValidationResult {
	result := newResult("range")

	if endBlock < startBlock {
		result.fail(errors.NewProfilerError(errors.ErrorTypeValidation, errors.SeverityFatal,
			"INVALID_RANGE", fmt.Sprintf("结束区块 %d 小于起始区块 %d", endBlock, startBlock)))
	}

	return result
}

// ValidateProfilerConfig 验证剖析器配置
func (v *Validator) ValidateProfilerConfig(cfg *config.ProfilerConfig) *ValidationResult {
	result := newResult("profiler_config")

	if cfg == nil {
		result.fail(errors.ErrConfigInvalid.WithContext("reason", "剖析器配置为空"))
		return result
	}

	if cfg.ReceiptWorkers <= 0 {
		result.fail(errors.NewProfilerError(errors.ErrorTypeConfig, errors.SeverityFatal,
			"INVALID_WORKERS", fmt.Sprintf("收据并发数无效: %d", cfg.ReceiptWorkers)))
	}

	if cfg.ChunkSize == 0 {
		result.fail(errors.NewProfilerError(errors.ErrorTypeConfig, errors.SeverityFatal,
			"INVALID_CHUNK_SIZE", "分块大小必须大于0"))
	}

	switch cfg.TraceMode {
	case "", "none", "erigon", "geth":
	default:
		result.fail(errors.NewProfilerError(errors.ErrorTypeConfig, errors.SeverityFatal,
			"INVALID_TRACE_MODE", fmt.Sprintf("未知的追踪后端: %s", cfg.TraceMode)))
	}

	return result
}

// ValidateNodes 验证节点配置
func (v *Validator) ValidateNodes(nodes []*config.NodeConfig) *ValidationResult {
	result := newResult("nodes")

	if len(nodes) == 0 {
		result.fail(errors.NewProfilerError(errors.ErrorTypeConfig, errors.SeverityFatal,
			"NO_NODES", "没有配置任何节点"))
		return result
	}

	for _, node := range nodes {
		if node.URL == "" {
			result.fail(errors.NewProfilerError(errors.ErrorTypeConfig, errors.SeverityFatal,
				"MISSING_NODE_URL", fmt.Sprintf("节点 %s 缺少URL", node.Name)).
				WithContext("node", node.Name))
			continue
		}
		if !strings.HasPrefix(node.URL, "http://") &&
			!strings.HasPrefix(node.URL, "https://") &&
			!strings.HasPrefix(node.URL, "ws://") &&
			!strings.HasPrefix(node.URL, "wss://") &&
			!strings.HasPrefix(node.URL, "/") { // IPC路径
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("节点 %s 的URL协议无法识别: %s", node.Name, node.URL))
		}
	}

	return result
}

// ValidateReceipt 验证收据数据
// 格式问题不致命，只作为警告记录供排查
func (v *Validator) ValidateReceipt(receipt *models.Receipt) *ValidationResult {
	result := newResult("receipt")

	if receipt == nil {
		result.fail(errors.ErrReceiptFetchFailed.WithContext("reason", "收据为空"))
		return result
	}

	if !isValidHash(receipt.TransactionHash) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("交易哈希格式异常: %s", receipt.TransactionHash))
	}

	for i, log := range receipt.Logs {
		if !isValidAddress(log.Address) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("日志%d的合约地址格式异常: %s", i, log.Address))
		}
		// Solidity事件最多4个indexed参数
		if len(log.Topics) > 4 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("日志%d的主题数量过多: %d", i, len(log.Topics)))
		}
		for j, topic := range log.Topics {
			if !isValidHash(topic) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("日志%d的主题%d格式异常", i, j))
			}
		}
	}

	return result
}

// ValidateTransaction 验证交易数据
func (v *Validator) ValidateTransaction(tx *models.Transaction) *ValidationResult {
	result := newResult("transaction")

	if tx == nil {
		result.fail(errors.NewProfilerError(errors.ErrorTypeData, errors.SeverityDegraded,
			"NIL_TRANSACTION", "交易为空"))
		return result
	}

	if !isValidHash(tx.Hash) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("交易哈希格式异常: %s", tx.Hash))
	}

	if tx.From != "" && !isValidAddress(tx.From) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("发送方地址格式异常: %s", tx.From))
	}

	if tx.To != "" && !isValidAddress(tx.To) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("接收方地址格式异常: %s", tx.To))
	}

	if tx.Value != nil && tx.Value.Sign() < 0 {
		result.fail(errors.NewProfilerError(errors.ErrorTypeData, errors.SeverityDegraded,
			"NEGATIVE_VALUE", "交易值不能为负数").WithTxHash(tx.Hash))
	}

	return result
}

// newResult 创建初始为有效的验证结果
func newResult(dataType string) *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		DataType: dataType,
		Errors:   make([]*errors.ProfilerError, 0),
		Warnings: make([]string, 0),
	}
}

// fail 记录错误并标记结果为无效
func (r *ValidationResult) fail(err *errors.ProfilerError) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// FirstError 返回第一个验证错误
func (r *ValidationResult) FirstError() error {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return nil
}

var hashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

// isValidHash 验证哈希格式
func isValidHash(hash string) bool {
	return hashRegex.MatchString(hash)
}

// isValidAddress 验证地址格式
func isValidAddress(addr string) bool {
	if addr == "" {
		return true // 空地址在某些情况下是有效的
	}

	if !strings.HasPrefix(addr, "0x") {
		return false
	}

	return common.IsHexAddress(addr)
}
