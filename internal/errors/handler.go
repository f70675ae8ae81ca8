package errors

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器
// 统一记录错误统计并按严重级别写日志，致命错误由调用方决定终止
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	// 错误回调
	callbacks []ErrorCallback
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *ProfilerError)

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:    logger,
		stats:     NewErrorStats(),
		callbacks: make([]ErrorCallback, 0),
	}
}

// HandleError 处理错误：记录统计、写日志、执行回调
func (eh *ErrorHandler) HandleError(err error) *ProfilerError {
	var profErr *ProfilerError

	// 转换为ProfilerError
	if pe, ok := err.(*ProfilerError); ok {
		profErr = pe
	} else {
		// 包装普通错误，默认按降级处理
		profErr = WrapError(err, ErrorTypeSystem, SeverityDegraded, "UNKNOWN_ERROR", "未知错误")
	}

	eh.recordError(profErr)
	eh.logError(profErr)
	eh.executeCallbacks(profErr)

	return profErr
}

// recordError 记录错误
func (eh *ErrorHandler) recordError(err *ProfilerError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats.RecordError(err)
}

// logError 按严重级别写日志
func (eh *ErrorHandler) logError(err *ProfilerError) {
	logEntry := eh.logger.WithFields(logrus.Fields{
		"error_type":   err.Type.String(),
		"error_code":   err.Code,
		"severity":     err.Severity.String(),
		"component":    err.Component,
		"block_number": err.BlockNumber,
		"tx_hash":      err.TxHash,
		"context":      err.Context,
	})

	switch err.Severity {
	case SeverityApproximation:
		logEntry.Warn(err.Message)
	case SeverityDegraded:
		logEntry.Warn(err.Message)
	case SeverityFatal:
		logEntry.Error(err.Message)
	}
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *ProfilerError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, callback := range callbacks {
		func(cb ErrorCallback) {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}(callback)
	}
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// GetStats 获取错误统计信息
func (eh *ErrorHandler) GetStats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}
