package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 区块链相关错误
	ErrorTypeBlockchain
	ErrorTypeReceipt
	ErrorTypeTrace

	// 数据相关错误
	ErrorTypeData
	ErrorTypeSerialization
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeSystem
	ErrorTypeFileIO
	ErrorTypeConfig

	// 外部服务错误
	ErrorTypeDatabase
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
// Fatal会终止整个剖析运行；Degraded允许继续但记录数据损失；
// Approximation表示结果仍然精确统计但覆盖面缩小（如追踪不可用）
type ErrorSeverity int

const (
	SeverityApproximation ErrorSeverity = iota
	SeverityDegraded
	SeverityFatal
)

// ProfilerError 自定义错误类型
type ProfilerError struct {
	Type        ErrorType              `json:"type"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"cause,omitempty"`
	Component   string                 `json:"component"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
	TxHash      *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *ProfilerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *ProfilerError) Unwrap() error {
	return e.Cause
}

// IsFatal 判断是否应终止整个运行
func (e *ProfilerError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// WithContext 添加上下文信息
func (e *ProfilerError) WithContext(key string, value interface{}) *ProfilerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithBlockNumber 添加区块号
func (e *ProfilerError) WithBlockNumber(blockNumber uint64) *ProfilerError {
	e.BlockNumber = &blockNumber
	return e
}

// WithTxHash 添加交易哈希
func (e *ProfilerError) WithTxHash(txHash string) *ProfilerError {
	e.TxHash = &txHash
	return e
}

// WithComponent 标记产生错误的组件
func (e *ProfilerError) WithComponent(component string) *ProfilerError {
	e.Component = component
	return e
}

// NewProfilerError 创建新的错误
func NewProfilerError(errorType ErrorType, severity ErrorSeverity, code, message string) *ProfilerError {
	return &ProfilerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *ProfilerError {
	return &ProfilerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
	}
}

// 预定义错误
var (
	// 致命错误：无法产出可信汇总
	ErrConnectionFailed = NewProfilerError(
		ErrorTypeConnection,
		SeverityFatal,
		"CONNECTION_FAILED",
		"连接节点失败",
	)

	ErrBlockFetchFailed = NewProfilerError(
		ErrorTypeBlockchain,
		SeverityFatal,
		"BLOCK_FETCH_FAILED",
		"区块获取失败",
	)

	ErrInvalidRange = NewProfilerError(
		ErrorTypeValidation,
		SeverityFatal,
		"INVALID_RANGE",
		"区块区间无效",
	)

	ErrConfigInvalid = NewProfilerError(
		ErrorTypeConfig,
		SeverityFatal,
		"CONFIG_INVALID",
		"配置无效",
	)

	// 降级错误：跳过并计数，运行继续
	ErrReceiptFetchFailed = NewProfilerError(
		ErrorTypeReceipt,
		SeverityDegraded,
		"RECEIPT_FETCH_FAILED",
		"交易收据获取失败",
	)

	ErrSerializationFailed = NewProfilerError(
		ErrorTypeSerialization,
		SeverityDegraded,
		"SERIALIZATION_FAILED",
		"数据序列化失败",
	)

	ErrKafkaProduceFailed = NewProfilerError(
		ErrorTypeKafka,
		SeverityDegraded,
		"KAFKA_PRODUCE_FAILED",
		"Kafka消息发送失败",
	)

	// 近似错误：统计仍精确，仅覆盖面缩小
	ErrTraceUnavailable = NewProfilerError(
		ErrorTypeTrace,
		SeverityApproximation,
		"TRACE_UNAVAILABLE",
		"节点不支持内部转账追踪",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:       "Network",
	ErrorTypeConnection:    "Connection",
	ErrorTypeTimeout:       "Timeout",
	ErrorTypeRateLimit:     "RateLimit",
	ErrorTypeBlockchain:    "Blockchain",
	ErrorTypeReceipt:       "Receipt",
	ErrorTypeTrace:         "Trace",
	ErrorTypeData:          "Data",
	ErrorTypeSerialization: "Serialization",
	ErrorTypeValidation:    "Validation",
	ErrorTypeSystem:        "System",
	ErrorTypeFileIO:        "FileIO",
	ErrorTypeConfig:        "Config",
	ErrorTypeDatabase:      "Database",
	ErrorTypeKafka:         "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityApproximation: "Approximation",
	SeverityDegraded:      "Degraded",
	SeverityFatal:         "Fatal",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
// 降级处理的数据损失（如丢弃的收据）最终要汇报到notes里
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*ProfilerError      `json:"recent_errors"`
	LastError         *ProfilerError        `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*ProfilerError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *ProfilerError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// CountByType 获取某一类型的错误总数
func (es *ErrorStats) CountByType(errorType ErrorType) int {
	return es.ErrorsByType[errorType]
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0

	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := duration.Hours()
	if hours == 0 {
		return float64(recentCount)
	}

	return float64(recentCount) / hours
}
