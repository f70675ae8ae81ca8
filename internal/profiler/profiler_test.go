package profiler

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"profiler/internal/classify"
	"profiler/internal/config"
	"profiler/internal/progress"
	"profiler/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput 记录写入内容的假输出器
type captureOutput struct {
	rows      []*models.BlockRow
	summaries []*models.OverallSummary
	closed    bool
}

func (o *captureOutput) WriteSummary(summary *models.OverallSummary) error {
	o.summaries = append(o.summaries, summary)
	return nil
}

func (o *captureOutput) WriteBlockRow(row *models.BlockRow) error {
	o.rows = append(o.rows, row)
	return nil
}

func (o *captureOutput) Close() error {
	o.closed = true
	return nil
}

func testProfilerConfig() *config.ProfilerConfig {
	return &config.ProfilerConfig{
		ReceiptWorkers: 4,
		ChunkSize:      10,
		TraceMode:      "none",
	}
}

// addBlock 注册一个区块及其交易，收据默认成功返回
func (f *fakeLedgerClient) addBlock(number uint64, txs ...*models.Transaction) {
	f.blocks[number] = &models.Block{
		Number:    number,
		Timestamp: time.Unix(1700000000+int64(number), 0),
		GasUsed:   8_000_000,
		GasLimit:  30_000_000,
	}
	f.blockTxs[number] = txs
	for _, tx := range txs {
		if _, exists := f.receipts[tx.Hash]; !exists {
			f.receipts[tx.Hash] = &models.Receipt{TransactionHash: tx.Hash, GasUsed: 21000}
		}
	}
}

func ethTx(hash, from, to string, valueEth int64) *models.Transaction {
	return &models.Transaction{
		Hash:     hash,
		From:     from,
		To:       to,
		Value:    new(big.Int).Mul(big.NewInt(valueEth), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GasPrice: new(big.Int).Mul(big.NewInt(20), big.NewInt(1_000_000_000)),
	}
}

func newTestProfiler(t *testing.T, client *fakeLedgerClient, cfg *config.ProfilerConfig,
	out *captureOutput, progressMgr *progress.Manager) *Profiler {

	prof, err := New(client, cfg, nil, out, progressMgr, testLogger())
	require.NoError(t, err)
	return prof
}

func TestNew_InvalidConfig(t *testing.T) {
	client := newFakeLedgerClient()
	out := &captureOutput{}

	_, err := New(client, &config.ProfilerConfig{ReceiptWorkers: 0, ChunkSize: 10}, nil, out, nil, testLogger())
	assert.Error(t, err)

	_, err = New(client, &config.ProfilerConfig{ReceiptWorkers: 4, ChunkSize: 0}, nil, out, nil, testLogger())
	assert.Error(t, err)

	_, err = New(client, &config.ProfilerConfig{ReceiptWorkers: 4, ChunkSize: 10, TraceMode: "parity"}, nil, out, nil, testLogger())
	assert.Error(t, err)
}

func TestRun_InvalidRange(t *testing.T) {
	prof := newTestProfiler(t, newFakeLedgerClient(), testProfilerConfig(), &captureOutput{}, nil)

	_, err := prof.Run(context.Background(), 200, 100)
	assert.Error(t, err)
}

func TestRun_SingleChunk(t *testing.T) {
	client := newFakeLedgerClient()
	client.chainID = 1

	erc20Tx := &models.Transaction{
		Hash:     "0xtx-erc20",
		From:     "0xa2a2000000000000000000000000000000000002",
		To:       "0xc0c0000000000000000000000000000000000003",
		Value:    big.NewInt(0),
		GasPrice: new(big.Int).Mul(big.NewInt(30), big.NewInt(1_000_000_000)),
		Input:    "a9059cbb000000000000000000000000a2a2000000000000000000000000000000000002",
	}
	client.receipts[erc20Tx.Hash] = &models.Receipt{
		TransactionHash: erc20Tx.Hash,
		GasUsed:         52000,
		Logs: []*models.TransactionLog{
			{
				Address: "0xc0c0000000000000000000000000000000000003",
				Topics:  []string{classify.SigTransfer, "0x0", "0x1"},
				Data:    "0x00000000000000000000000000000000000000000000000000000000000003e8",
			},
		},
	}

	client.addBlock(100,
		ethTx("0xtx-eth", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1),
		erc20Tx,
	)
	client.addBlock(101,
		&models.Transaction{Hash: "0xtx-create", From: "0xa1a1000000000000000000000000000000000001", To: "", Value: big.NewInt(0), GasPrice: big.NewInt(0)},
	)

	out := &captureOutput{}
	prof := newTestProfiler(t, client, testProfilerConfig(), out, nil)

	summary, err := prof.Run(context.Background(), 100, 101)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), summary.StartBlock)
	assert.Equal(t, uint64(101), summary.EndBlock)
	assert.Equal(t, uint64(1), summary.ChainID)
	assert.Equal(t, uint64(2), summary.BlockCount)
	assert.Equal(t, uint64(3), summary.TotalTx)
	assert.Equal(t, "1", summary.TotalEth)
	assert.Equal(t, uint64(0), summary.DroppedReceipts)

	// 单分块时去重计数可直接透传
	assert.Equal(t, int64(2), summary.UniqueSenders)

	require.Contains(t, summary.TxTypes, "eth_transfer")
	require.Contains(t, summary.TxTypes, "erc20_transfer")
	require.Contains(t, summary.TxTypes, "contract_creation")
	assert.Equal(t, uint64(1), summary.TxTypes["eth_transfer"].Count)
	assert.Equal(t, uint64(1), summary.TxTypes["erc20_transfer"].Count)

	// ERC20交易的选择器与代币地址进入top列表
	require.Len(t, summary.TopMethods, 1)
	assert.Equal(t, "0xa9059cbb", summary.TopMethods[0].Address)
	require.Len(t, summary.TopTokens, 1)
	assert.Equal(t, "0xc0c0000000000000000000000000000000000003", summary.TopTokens[0].Address)

	// 配置回显
	require.NotNil(t, summary.Limits)
	assert.Equal(t, uint64(10), summary.Limits.ChunkSize)
	assert.Equal(t, 4, summary.Limits.Concurrency)

	// 追踪关闭时带说明条目
	assert.Contains(t, summary.Notes, "internal value tracing disabled: total_internal_value_eth is 0")

	// 每个区块一行CSV，汇总写一次
	require.Len(t, out.rows, 2)
	assert.Equal(t, uint64(100), out.rows[0].BlockNumber)
	assert.Equal(t, 2, out.rows[0].TxCount)
	assert.Equal(t, uint64(1), out.rows[0].CategoryCounts[models.CategoryEthTransfer])
	assert.Equal(t, uint64(101), out.rows[1].BlockNumber)
	require.Len(t, out.summaries, 1)
}

func TestRun_MultiChunkUnreliableUniques(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100, ethTx("0xtx-a", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1))
	client.addBlock(101, ethTx("0xtx-b", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1))

	cfg := testProfilerConfig()
	cfg.ChunkSize = 1 // 每区块一个分块

	out := &captureOutput{}
	prof := newTestProfiler(t, client, cfg, out, nil)

	summary, err := prof.Run(context.Background(), 100, 101)
	require.NoError(t, err)

	assert.Equal(t, int64(-1), summary.UniqueSenders)
	assert.Equal(t, int64(-1), summary.UniqueReceivers)
	assert.Contains(t, summary.Notes,
		"unique sender/receiver counts are per-chunk only; -1 marks unreliable merged counts")
}

func TestRun_ReceiptFailureDegrades(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100,
		ethTx("0xtx-ok", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1),
		ethTx("0xtx-bad", "0xa2a2000000000000000000000000000000000002", "0xb1b1000000000000000000000000000000000001", 2),
	)
	client.receiptErrs["0xtx-bad"] = fmt.Errorf("节点限流")

	out := &captureOutput{}
	prof := newTestProfiler(t, client, testProfilerConfig(), out, nil)

	summary, err := prof.Run(context.Background(), 100, 100)
	require.NoError(t, err)

	// 单笔收据失败不致命：跳过该交易并计数
	assert.Equal(t, uint64(1), summary.TotalTx)
	assert.Equal(t, uint64(1), summary.DroppedReceipts)
	assert.Equal(t, "1", summary.TotalEth)
	assert.Contains(t, summary.Notes, "1 transactions dropped due to receipt fetch failures")

	// 错误统计也记录了降级错误
	assert.Equal(t, 1, prof.ErrorStats().TotalErrors)
}

func TestRun_BlockFetchFailureIsFatal(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100, ethTx("0xtx-a", "0xa1", "0xb1", 1))
	// 区块101未注册，GetBlock会失败

	out := &captureOutput{}
	prof := newTestProfiler(t, client, testProfilerConfig(), out, nil)

	_, err := prof.Run(context.Background(), 100, 101)
	assert.Error(t, err)
	assert.Empty(t, out.summaries)
}

func TestRun_TxCapTruncatesCoverage(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100,
		ethTx("0xtx-1", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1),
		ethTx("0xtx-2", "0xa2a2000000000000000000000000000000000002", "0xb1b1000000000000000000000000000000000001", 1),
		ethTx("0xtx-3", "0xa3a3000000000000000000000000000000000003", "0xb1b1000000000000000000000000000000000001", 1),
	)
	client.addBlock(101, ethTx("0xtx-4", "0xa4", "0xb1", 1))

	cfg := testProfilerConfig()
	cfg.TxCap = 2

	out := &captureOutput{}
	prof := newTestProfiler(t, client, cfg, out, nil)

	summary, err := prof.Run(context.Background(), 100, 101)
	require.NoError(t, err)

	// 上限在区块100内被触发：折叠2笔后停止，第3笔已取回的收据被丢弃
	assert.Equal(t, uint64(2), summary.TotalTx)
	assert.Equal(t, uint64(100), summary.EndBlock)
	assert.Equal(t, uint64(1), summary.BlockCount)
	assert.Equal(t, "2", summary.TotalEth)
	assert.Contains(t, summary.Notes, "tx cap 2 reached: coverage truncated at block 100")

	// 后续区块不再请求
	assert.Equal(t, []uint64{100}, client.blockCalls)
}

func TestRun_ResumeSkipsSavedChunks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "progress.db")

	client := newFakeLedgerClient()
	client.addBlock(100, ethTx("0xtx-a", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1))
	client.addBlock(101, ethTx("0xtx-b", "0xa2a2000000000000000000000000000000000002", "0xb1b1000000000000000000000000000000000001", 2))

	cfg := testProfilerConfig()
	cfg.ChunkSize = 1

	// 第一次完整跑完并记录进度
	mgr, err := progress.NewManager(dbPath, testLogger())
	require.NoError(t, err)
	prof := newTestProfiler(t, client, cfg, &captureOutput{}, mgr)
	first, err := prof.Run(context.Background(), 100, 101)
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	// 第二次用空客户端续跑：全部分块已保存，不应再请求任何区块
	mgr, err = progress.NewManager(dbPath, testLogger())
	require.NoError(t, err)
	defer mgr.Close()

	emptyClient := newFakeLedgerClient()
	prof = newTestProfiler(t, emptyClient, cfg, &captureOutput{}, mgr)
	second, err := prof.Run(context.Background(), 100, 101)
	require.NoError(t, err)

	assert.Empty(t, emptyClient.blockCalls)
	assert.Equal(t, first.TotalTx, second.TotalTx)
	assert.Equal(t, first.TotalEth, second.TotalEth)
	assert.Equal(t, first.BlockCount, second.BlockCount)
}

func TestRun_CancelledContext(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100, ethTx("0xtx-a", "0xa1", "0xb1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prof := newTestProfiler(t, client, testProfilerConfig(), &captureOutput{}, nil)

	_, err := prof.Run(ctx, 100, 100)
	assert.Error(t, err)
}

func TestRun_SkipContractCheckNote(t *testing.T) {
	client := newFakeLedgerClient()
	client.addBlock(100, ethTx("0xtx-a", "0xa1a1000000000000000000000000000000000001", "0xb1b1000000000000000000000000000000000001", 1))

	cfg := testProfilerConfig()
	cfg.SkipContractCheck = true

	prof := newTestProfiler(t, client, cfg, &captureOutput{}, nil)

	summary, err := prof.Run(context.Background(), 100, 100)
	require.NoError(t, err)

	assert.Contains(t, summary.Notes,
		"skip_contract_check enabled: other_contract_call may include plain EOA calls")
}
