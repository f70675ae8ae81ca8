package profiler

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"profiler/internal/config"
	"profiler/internal/connection"
	"profiler/internal/retry"
	"profiler/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// LedgerClient 节点查询接口
// 剖析核心只依赖这四类只读查询，测试时用假实现替换
type LedgerClient interface {
	// ChainID 获取链ID
	ChainID(ctx context.Context) (uint64, error)
	// GetBlock 获取区块及其全部交易
	GetBlock(ctx context.Context, number uint64) (*models.Block, []*models.Transaction, error)
	// GetReceipt 获取交易收据
	GetReceipt(ctx context.Context, txHash string) (*models.Receipt, error)
	// CodeAt 获取地址的合约代码（最新状态）
	CodeAt(ctx context.Context, address string) ([]byte, error)
	// CallContext 原始JSON-RPC调用（追踪接口用）
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	// Close 释放底层连接
	Close() error
}

// EthLedgerClient 基于连接池的节点客户端
// 重试只发生在建连边界，单次查询失败按调用方的降级策略处理
type EthLedgerClient struct {
	pool   *connection.ConnectionPool
	logger *logrus.Logger
}

// NewEthLedgerClient 创建节点客户端
func NewEthLedgerClient(ctx context.Context, nodes []*config.NodeConfig, logger *logrus.Logger) (*EthLedgerClient, error) {
	pool := connection.NewConnectionPool(nodes, logger)

	retrier := retry.NewRetrier(retry.NetworkRetryConfig, logger)
	if err := retrier.Execute(ctx, "初始化节点连接池", pool.Initialize); err != nil {
		return nil, fmt.Errorf("初始化节点连接池失败: %w", err)
	}

	return &EthLedgerClient{
		pool:   pool,
		logger: logger,
	}, nil
}

// ChainID 获取链ID
func (c *EthLedgerClient) ChainID(ctx context.Context) (uint64, error) {
	var chainID uint64
	err := c.pool.WithConn(func(conn *connection.Conn) error {
		id, err := conn.Eth.ChainID(ctx)
		if err != nil {
			return err
		}
		chainID = id.Uint64()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("查询链ID失败: %w", err)
	}
	return chainID, nil
}

// GetBlock 获取区块及其全部交易
func (c *EthLedgerClient) GetBlock(ctx context.Context, number uint64) (*models.Block, []*models.Transaction, error) {
	var block *models.Block
	var txs []*models.Transaction

	err := c.pool.WithConn(func(conn *connection.Conn) error {
		ethBlock, err := conn.Eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}

		block = &models.Block{}
		block.FromEthereumBlock(ethBlock)

		txs = make([]*models.Transaction, 0, len(ethBlock.Transactions()))
		for _, ethTx := range ethBlock.Transactions() {
			tx := &models.Transaction{}
			tx.FromEthereumTransaction(ethTx, number, ethBlock.Time())
			txs = append(txs, tx)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("获取区块 %d 失败: %w", number, err)
	}

	return block, txs, nil
}

// GetReceipt 获取交易收据
func (c *EthLedgerClient) GetReceipt(ctx context.Context, txHash string) (*models.Receipt, error) {
	var receipt *models.Receipt

	err := c.pool.WithConn(func(conn *connection.Conn) error {
		ethReceipt, err := conn.Eth.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err != nil {
			return err
		}

		receipt = &models.Receipt{}
		receipt.FromEthereumReceipt(ethReceipt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("获取交易 %s 的收据失败: %w", txHash, err)
	}

	return receipt, nil
}

// CodeAt 获取地址的合约代码（最新状态）
func (c *EthLedgerClient) CodeAt(ctx context.Context, address string) ([]byte, error) {
	var code []byte

	err := c.pool.WithConn(func(conn *connection.Conn) error {
		result, err := conn.Eth.CodeAt(ctx, common.HexToAddress(strings.ToLower(address)), nil)
		if err != nil {
			return err
		}
		code = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("查询地址 %s 的合约代码失败: %w", address, err)
	}

	return code, nil
}

// CallContext 原始JSON-RPC调用
func (c *EthLedgerClient) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return c.pool.WithConn(func(conn *connection.Conn) error {
		return conn.RPC.CallContext(ctx, result, method, args...)
	})
}

// GetStats 连接池统计信息
func (c *EthLedgerClient) GetStats() map[string]interface{} {
	return c.pool.GetStats()
}

// Close 关闭连接池
func (c *EthLedgerClient) Close() error {
	return c.pool.Close()
}
