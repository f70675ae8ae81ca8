package progress

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/progress.db"

	// 存储桶名称
	RunBucket   = "run"
	ChunkBucket = "chunks"

	// 运行信息键
	RunInfoKey = "run_info"
)

// RunInfo 运行信息
// 同一区间同一分块大小的运行才能断点续跑
type RunInfo struct {
	StartBlock        uint64    `json:"start_block"`
	EndBlock          uint64    `json:"end_block"`
	ChunkSize         uint64    `json:"chunk_size"`
	StartTime         time.Time `json:"start_time"`
	LastUpdateTime    time.Time `json:"last_update_time"`
	CompletedChunks   uint64    `json:"completed_chunks"`
	CompletedBlocks   uint64    `json:"completed_blocks"`
	TotalTransactions uint64    `json:"total_transactions"`
	ProcessingRate    float64   `json:"processing_rate"` // 区块/秒
}

// Manager 进度管理器
// 以分块为粒度持久化中间汇总，中断后可以跳过已完成的分块
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *RunInfo
}

// NewManager 创建进度管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 打开BoltDB数据库
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	manager := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		cache:  &RunInfo{},
	}

	// 初始化数据库结构
	if err := manager.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	// 加载缓存
	if err := manager.loadCache(); err != nil {
		logger.Warnf("加载进度缓存失败: %v", err)
	}

	logger.Infof("进度管理器已初始化，数据库路径: %s", dbPath)
	return manager, nil
}

// initDB 初始化数据库结构
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(RunBucket)); err != nil {
			return fmt.Errorf("创建运行信息存储桶失败: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists([]byte(ChunkBucket)); err != nil {
			return fmt.Errorf("创建分块存储桶失败: %w", err)
		}

		return nil
	})
}

// loadCache 加载缓存
func (m *Manager) loadCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(RunBucket))
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(RunInfoKey)); data != nil {
			var info RunInfo
			if err := json.Unmarshal(data, &info); err == nil {
				m.cache = &info
			}
		}

		return nil
	})
}

// BeginRun 开始或恢复一次运行
// 区间或分块大小与上次不同时清空旧进度重新开始
func (m *Manager) BeginRun(startBlock, endBlock, chunkSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sameRun := m.cache.StartBlock == startBlock &&
		m.cache.EndBlock == endBlock &&
		m.cache.ChunkSize == chunkSize &&
		!m.cache.StartTime.IsZero()

	if sameRun {
		m.logger.Infof("恢复已有运行: 区块 %d-%d，已完成 %d 个分块",
			startBlock, endBlock, m.cache.CompletedChunks)
		return nil
	}

	m.cache = &RunInfo{
		StartBlock: startBlock,
		EndBlock:   endBlock,
		ChunkSize:  chunkSize,
		StartTime:  time.Now(),
	}

	return m.db.Update(func(tx *bolt.Tx) error {
		// 清空旧的分块进度
		if err := tx.DeleteBucket([]byte(ChunkBucket)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("清空分块存储桶失败: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(ChunkBucket)); err != nil {
			return fmt.Errorf("重建分块存储桶失败: %w", err)
		}

		return m.saveRunInfoTx(tx)
	})
}

// SaveChunk 保存一个已完成分块的汇总
func (m *Manager) SaveChunk(chunkStart uint64, summary *models.ChunkSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.cache.CompletedChunks++
	m.cache.CompletedBlocks += summary.BlockCount
	m.cache.TotalTransactions += summary.TotalTx
	m.cache.LastUpdateTime = now

	// 计算处理速率
	if !m.cache.StartTime.IsZero() {
		duration := now.Sub(m.cache.StartTime).Seconds()
		if duration > 0 {
			m.cache.ProcessingRate = float64(m.cache.CompletedBlocks) / duration
		}
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("序列化分块汇总失败: %w", err)
	}

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ChunkBucket))
		if bucket == nil {
			return fmt.Errorf("分块存储桶不存在")
		}

		if err := bucket.Put(chunkKey(chunkStart), data); err != nil {
			return fmt.Errorf("保存分块汇总失败: %w", err)
		}

		return m.saveRunInfoTx(tx)
	})
}

// LoadChunks 加载已完成的分块汇总（按分块起始区块索引）
func (m *Manager) LoadChunks() (map[uint64]*models.ChunkSummary, error) {
	chunks := make(map[uint64]*models.ChunkSummary)

	err := m.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ChunkBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return nil
			}
			var summary models.ChunkSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				return fmt.Errorf("解析分块汇总失败: %w", err)
			}
			chunks[binary.BigEndian.Uint64(k)] = &summary
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// saveRunInfoTx 在已有事务内保存运行信息
func (m *Manager) saveRunInfoTx(tx *bolt.Tx) error {
	bucket := tx.Bucket([]byte(RunBucket))
	if bucket == nil {
		return fmt.Errorf("运行信息存储桶不存在")
	}

	data, err := json.Marshal(m.cache)
	if err != nil {
		return fmt.Errorf("序列化运行信息失败: %w", err)
	}

	return bucket.Put([]byte(RunInfoKey), data)
}

// chunkKey 分块键（大端编码保证遍历按区块号升序）
func chunkKey(chunkStart uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, chunkStart)
	return key
}

// GetRun 获取运行信息
func (m *Manager) GetRun() *RunInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 返回副本
	info := *m.cache
	return &info
}

// Reset 重置进度
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = &RunInfo{}

	return m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{RunBucket, ChunkBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
				return fmt.Errorf("清空存储桶 %s 失败: %w", name, err)
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("重建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	info := m.GetRun()

	stats := map[string]interface{}{
		"start_block":        info.StartBlock,
		"end_block":          info.EndBlock,
		"chunk_size":         info.ChunkSize,
		"completed_chunks":   info.CompletedChunks,
		"completed_blocks":   info.CompletedBlocks,
		"total_transactions": info.TotalTransactions,
		"processing_rate":    fmt.Sprintf("%.2f blocks/sec", info.ProcessingRate),
		"start_time":         info.StartTime.Format(time.RFC3339),
		"last_update_time":   info.LastUpdateTime.Format(time.RFC3339),
	}

	if !info.StartTime.IsZero() {
		duration := time.Since(info.StartTime)
		stats["running_duration"] = duration.String()
	}

	return stats
}

// Close 关闭进度管理器
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭进度管理器")
		return m.db.Close()
	}
	return nil
}
