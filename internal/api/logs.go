package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 对外暴露的日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 内存日志环形缓冲
// 容量固定，写满后覆盖最旧的条目；供API按级别分页查询
type LogManager struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int // 下一个写入位置
	filled  bool
}

// NewLogManager 创建日志管理器
func NewLogManager(capacity int) *LogManager {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LogManager{
		entries: make([]LogEntry, capacity),
	}
}

// AddLog 记录一条日志
// 字段做浅拷贝，避免与logrus内部的entry.Data产生共享
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	fields := make(map[string]interface{}, len(entry.Data))
	for key, value := range entry.Data {
		fields[key] = value
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.entries[lm.next] = LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	}
	lm.next++
	if lm.next == len(lm.entries) {
		lm.next = 0
		lm.filled = true
	}
}

// snapshotLocked 按时间顺序导出当前缓冲内容，调用方需持有读锁
func (lm *LogManager) snapshotLocked(level string) []LogEntry {
	var ordered []LogEntry
	if lm.filled {
		ordered = make([]LogEntry, 0, len(lm.entries))
		ordered = append(ordered, lm.entries[lm.next:]...)
		ordered = append(ordered, lm.entries[:lm.next]...)
	} else {
		ordered = make([]LogEntry, 0, lm.next)
		ordered = append(ordered, lm.entries[:lm.next]...)
	}

	if level == "" {
		return ordered
	}

	filtered := ordered[:0]
	for _, entry := range ordered {
		if entry.Level == level {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// GetLogsWithPagination 按级别过滤后分页返回日志及总条数
func (lm *LogManager) GetLogsWithPagination(level string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	logs := lm.snapshotLocked(level)
	total := len(logs)

	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	return logs[start:end], total
}

// ClearLogs 清空缓冲
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for i := range lm.entries {
		lm.entries[i] = LogEntry{}
	}
	lm.next = 0
	lm.filled = false
}

// LogHook 把logrus日志旁路进环形缓冲的钩子
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现logrus.Hook接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现logrus.Hook接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
