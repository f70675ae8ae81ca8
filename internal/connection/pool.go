package connection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"profiler/internal/config"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Conn 一条节点连接
// 同时持有rpc客户端（追踪接口用）和ethclient封装（常规查询用）
type Conn struct {
	RPC *rpc.Client
	Eth *ethclient.Client
}

// Close 关闭连接
func (c *Conn) Close() {
	if c.RPC != nil {
		c.RPC.Close()
	}
}

// ConnectionPool 以太坊连接池
// 按节点优先级选取健康节点，每个节点维护自己的连接池
type ConnectionPool struct {
	nodes       []*config.NodeConfig
	pools       map[string]*NodePool
	ordered     []string // 节点名按优先级升序
	logger      *logrus.Logger
	mu          sync.RWMutex
	healthCheck time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NodePool 单个节点的连接池
type NodePool struct {
	nodeConfig *config.NodeConfig
	clients    chan *Conn
	maxSize    int
	current    int
	logger     *logrus.Logger
	mu         sync.Mutex
	isHealthy  bool
	lastCheck  time.Time
}

// NewConnectionPool 创建连接池
func NewConnectionPool(nodes []*config.NodeConfig, logger *logrus.Logger) *ConnectionPool {
	return &ConnectionPool{
		nodes:       nodes,
		pools:       make(map[string]*NodePool),
		logger:      logger,
		healthCheck: 30 * time.Second,
		stopCh:      make(chan struct{}),
	}
}

// Initialize 初始化连接池
func (cp *ConnectionPool) Initialize() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	// 按优先级升序排列节点
	nodes := make([]*config.NodeConfig, len(cp.nodes))
	copy(nodes, cp.nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Priority < nodes[j].Priority
	})

	for _, node := range nodes {
		pool, err := NewNodePool(node, 10, cp.logger) // 每个节点最多10个连接
		if err != nil {
			cp.logger.Warnf("初始化节点 %s 连接池失败: %v", node.Name, err)
			continue
		}

		cp.pools[node.Name] = pool
		cp.ordered = append(cp.ordered, node.Name)
		cp.logger.Infof("节点 %s 连接池已初始化", node.Name)
	}

	if len(cp.pools) == 0 {
		return fmt.Errorf("没有可用的节点连接池")
	}

	// 启动健康检查
	go cp.healthChecker()

	return nil
}

// NewNodePool 创建节点连接池
func NewNodePool(nodeConfig *config.NodeConfig, maxSize int, logger *logrus.Logger) (*NodePool, error) {
	pool := &NodePool{
		nodeConfig: nodeConfig,
		clients:    make(chan *Conn, maxSize),
		maxSize:    maxSize,
		logger:     logger,
		isHealthy:  true,
	}

	// 预创建一些连接
	initialSize := maxSize / 2
	if initialSize < 1 {
		initialSize = 1
	}

	for i := 0; i < initialSize; i++ {
		conn, err := pool.createConn()
		if err != nil {
			logger.Warnf("预创建连接失败: %v", err)
			break
		}

		select {
		case pool.clients <- conn:
			pool.current++
		default:
			conn.Close()
		}
	}

	return pool, nil
}

// createConn 创建新的节点连接
func (np *NodePool) createConn() (*Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, np.nodeConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	conn := &Conn{
		RPC: rpcClient,
		Eth: ethclient.NewClient(rpcClient),
	}

	// 测试连接
	if _, err := conn.Eth.ChainID(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("测试连接失败: %w", err)
	}

	return conn, nil
}

// GetConn 获取连接（按节点优先级）
func (cp *ConnectionPool) GetConn() (*Conn, string, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	for _, name := range cp.ordered {
		pool := cp.pools[name]
		if !pool.IsHealthy() {
			continue
		}

		conn, err := pool.GetConn()
		if err != nil {
			cp.logger.Debugf("从节点 %s 获取连接失败: %v", name, err)
			continue
		}
		return conn, name, nil
	}

	return nil, "", fmt.Errorf("没有可用的健康节点")
}

// GetConn 从节点池获取连接
func (np *NodePool) GetConn() (*Conn, error) {
	// 首先尝试从池中获取现有连接
	select {
	case conn := <-np.clients:
		// 检查连接是否仍然有效
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.Eth.ChainID(ctx); err != nil {
			conn.Close()
			np.mu.Lock()
			np.current--
			np.mu.Unlock()
			// 连接无效，尝试创建新连接
			return np.createNewConn()
		}

		return conn, nil
	default:
		// 池中没有可用连接，创建新连接
		return np.createNewConn()
	}
}

// createNewConn 创建新连接
func (np *NodePool) createNewConn() (*Conn, error) {
	np.mu.Lock()
	defer np.mu.Unlock()

	// 检查是否达到最大连接数
	if np.current >= np.maxSize {
		return nil, fmt.Errorf("连接池已满")
	}

	conn, err := np.createConn()
	if err != nil {
		np.isHealthy = false
		return nil, err
	}

	np.current++
	return conn, nil
}

// ReturnConn 归还连接到池中
func (cp *ConnectionPool) ReturnConn(conn *Conn, nodeName string) {
	if conn == nil {
		return
	}

	cp.mu.RLock()
	pool, exists := cp.pools[nodeName]
	cp.mu.RUnlock()

	if !exists {
		conn.Close()
		return
	}

	pool.ReturnConn(conn)
}

// ReturnConn 归还连接到节点池
func (np *NodePool) ReturnConn(conn *Conn) {
	if conn == nil {
		return
	}

	select {
	case np.clients <- conn:
		// 成功归还到池中
	default:
		// 池已满，关闭连接
		conn.Close()
		np.mu.Lock()
		np.current--
		np.mu.Unlock()
	}
}

// IsHealthy 检查节点是否健康
func (np *NodePool) IsHealthy() bool {
	np.mu.Lock()
	defer np.mu.Unlock()

	// 如果最近检查过且是健康的，直接返回
	if time.Since(np.lastCheck) < 30*time.Second && np.isHealthy {
		return np.isHealthy
	}

	// 执行健康检查
	conn, err := np.createConn()
	if err != nil {
		np.isHealthy = false
		np.lastCheck = time.Now()
		return false
	}
	conn.Close()

	np.isHealthy = true
	np.lastCheck = time.Now()

	return np.isHealthy
}

// healthChecker 健康检查器
func (cp *ConnectionPool) healthChecker() {
	ticker := time.NewTicker(cp.healthCheck)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopCh:
			return
		case <-ticker.C:
		}

		cp.mu.RLock()
		pools := make(map[string]*NodePool)
		for name, pool := range cp.pools {
			pools[name] = pool
		}
		cp.mu.RUnlock()

		for name, pool := range pools {
			if pool.IsHealthy() {
				cp.logger.Debugf("节点 %s 健康检查通过", name)
			} else {
				cp.logger.Warnf("节点 %s 健康检查失败", name)
			}
		}
	}
}

// GetStats 获取连接池统计信息
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	stats := make(map[string]interface{})

	for name, pool := range cp.pools {
		poolStats := map[string]interface{}{
			"max_size":     pool.maxSize,
			"current_size": pool.current,
			"available":    len(pool.clients),
			"is_healthy":   pool.IsHealthy(),
			"last_check":   pool.lastCheck.Format(time.RFC3339),
		}
		stats[name] = poolStats
	}

	return stats
}

// Close 关闭连接池
func (cp *ConnectionPool) Close() error {
	cp.stopOnce.Do(func() { close(cp.stopCh) })

	cp.mu.Lock()
	defer cp.mu.Unlock()

	var errs []error

	for name, pool := range cp.pools {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭节点 %s 连接池失败: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭连接池时发生错误: %v", errs)
	}

	cp.logger.Info("连接池已关闭")
	return nil
}

// Close 关闭节点连接池
func (np *NodePool) Close() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	// 关闭所有连接
	close(np.clients)
	for conn := range np.clients {
		conn.Close()
	}

	np.current = 0
	return nil
}

// WithConn 获取连接执行操作后自动归还
func (cp *ConnectionPool) WithConn(fn func(conn *Conn) error) error {
	conn, nodeName, err := cp.GetConn()
	if err != nil {
		return err
	}
	defer cp.ReturnConn(conn, nodeName)

	return fn(conn)
}
