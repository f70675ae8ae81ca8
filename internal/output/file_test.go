package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCSVHeader(t *testing.T) {
	header := csvHeader()

	// 固定列顺序：元信息 + 8个类别 + gas两列
	expected := []string{
		"block_number", "timestamp", "tx_count",
		"eth_transfer", "contract_creation", "erc20_transfer", "erc721_transfer",
		"erc1155_transfer", "other_contract_call", "mixed_token_activity", "other_eoa_call",
		"block_gas_used", "block_gas_limit",
	}
	assert.Equal(t, expected, header)
}

func TestFileOutput_WriteSummary(t *testing.T) {
	dir := t.TempDir()
	summaryPath := filepath.Join(dir, "summary.json")

	out, err := NewFileOutput(summaryPath, "", quietLogger())
	require.NoError(t, err)
	defer out.Close()

	summary := &models.OverallSummary{
		StartBlock: 100,
		EndBlock:   199,
		ChainID:    1,
		BlockCount: 100,
		TotalTx:    42,
		TotalEth:   "1.5",
		TxTypes: map[string]*models.CategoryReport{
			"eth_transfer": {Count: 42, GasUsed: 882000, AvgGasPriceGwei: "20.0000", EthValueSum: "1.5"},
		},
		Notes: []string{"internal value tracing disabled: total_internal_value_eth is 0"},
	}

	require.NoError(t, out.WriteSummary(summary))

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)

	var loaded models.OverallSummary
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, uint64(100), loaded.StartBlock)
	assert.Equal(t, uint64(42), loaded.TotalTx)
	assert.Equal(t, "1.5", loaded.TotalEth)
	require.Contains(t, loaded.TxTypes, "eth_transfer")
	assert.Equal(t, "20.0000", loaded.TxTypes["eth_transfer"].AvgGasPriceGwei)
}

func TestFileOutput_WriteBlockRows(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "blocks.csv")

	out, err := NewFileOutput(filepath.Join(dir, "summary.json"), csvPath, quietLogger())
	require.NoError(t, err)

	require.NoError(t, out.WriteBlockRow(&models.BlockRow{
		BlockNumber: 100,
		Timestamp:   1700000100,
		TxCount:     3,
		CategoryCounts: map[models.Category]uint64{
			models.CategoryEthTransfer:   2,
			models.CategoryERC20Transfer: 1,
		},
		BlockGasUsed:  8_000_000,
		BlockGasLimit: 30_000_000,
	}))
	require.NoError(t, out.WriteBlockRow(&models.BlockRow{
		BlockNumber:    101,
		Timestamp:      1700000112,
		TxCount:        0,
		CategoryCounts: map[models.Category]uint64{},
		BlockGasUsed:   0,
		BlockGasLimit:  30_000_000,
	}))
	require.NoError(t, out.Close())

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // 表头 + 2行

	assert.Equal(t, csvHeader(), records[0])

	// 第一行：类别计数落在对应的列上
	row := records[1]
	assert.Equal(t, "100", row[0])
	assert.Equal(t, "1700000100", row[1])
	assert.Equal(t, "3", row[2])
	assert.Equal(t, "2", row[3]) // eth_transfer
	assert.Equal(t, "1", row[5]) // erc20_transfer
	assert.Equal(t, "8000000", row[11])
	assert.Equal(t, "30000000", row[12])

	// 第二行：空区块所有类别为0
	row = records[2]
	assert.Equal(t, "101", row[0])
	assert.Equal(t, "0", row[2])
	for i := 3; i < 11; i++ {
		assert.Equal(t, "0", row[i])
	}
}

func TestFileOutput_NoCSVConfigured(t *testing.T) {
	dir := t.TempDir()

	out, err := NewFileOutput(filepath.Join(dir, "summary.json"), "", quietLogger())
	require.NoError(t, err)
	defer out.Close()

	// 未配置CSV时写行是空操作
	assert.NoError(t, out.WriteBlockRow(&models.BlockRow{BlockNumber: 100}))
	assert.NoError(t, out.WriteBlockRow(nil))
}

func TestFileOutput_NilSummary(t *testing.T) {
	dir := t.TempDir()
	summaryPath := filepath.Join(dir, "summary.json")

	out, err := NewFileOutput(summaryPath, "", quietLogger())
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.WriteSummary(nil))

	_, err = os.Stat(summaryPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFileOutput_CreatesOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	summaryPath := filepath.Join(dir, "嵌套", "目录", "summary.json")

	out, err := NewFileOutput(summaryPath, "", quietLogger())
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.WriteSummary(&models.OverallSummary{TotalTx: 1}))

	_, err = os.Stat(summaryPath)
	assert.NoError(t, err)
}

func TestNewOutput_UnsupportedFormat(t *testing.T) {
	_, err := NewOutput("xml", "summary.json", "", nil, quietLogger())
	assert.Error(t, err)
}

func TestNewOutput_JSONFormat(t *testing.T) {
	dir := t.TempDir()

	out, err := NewOutput("json", filepath.Join(dir, "summary.json"), "", nil, quietLogger())
	require.NoError(t, err)
	defer out.Close()

	_, isFile := out.(*FileOutput)
	assert.True(t, isFile)
}
