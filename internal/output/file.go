package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
)

// FileOutput 文件输出器：JSON汇总 + 可选的按区块CSV
type FileOutput struct {
	summaryPath string
	csvFile     *os.File
	csvWriter   *csv.Writer
	logger      *logrus.Logger
}

// NewFileOutput 创建文件输出器
func NewFileOutput(summaryPath, csvPath string, logger *logrus.Logger) (*FileOutput, error) {
	if summaryPath == "" {
		summaryPath = "summary.json"
	}

	// 确保汇总文件的目录存在
	if dir := filepath.Dir(summaryPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	out := &FileOutput{
		summaryPath: summaryPath,
		logger:      logger,
	}

	if csvPath != "" {
		csvFile, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("创建CSV文件失败: %w", err)
		}
		out.csvFile = csvFile
		out.csvWriter = csv.NewWriter(csvFile)

		if err := out.csvWriter.Write(csvHeader()); err != nil {
			csvFile.Close()
			return nil, fmt.Errorf("写入CSV表头失败: %w", err)
		}
	}

	return out, nil
}

// csvHeader 按区块CSV的表头（类别列顺序固定）
func csvHeader() []string {
	header := []string{"block_number", "timestamp", "tx_count"}
	for _, category := range models.AllCategories {
		header = append(header, category.String())
	}
	return append(header, "block_gas_used", "block_gas_limit")
}

// WriteSummary 写入JSON汇总（覆盖写，带缩进）
func (o *FileOutput) WriteSummary(summary *models.OverallSummary) error {
	if summary == nil {
		return nil
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化汇总数据失败: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(o.summaryPath, data, 0644); err != nil {
		return fmt.Errorf("写入汇总文件失败: %w", err)
	}

	o.logger.Infof("JSON汇总已写入 %s", o.summaryPath)
	return nil
}

// WriteBlockRow 写入一行按区块统计（行顺序即区块号顺序）
func (o *FileOutput) WriteBlockRow(row *models.BlockRow) error {
	if row == nil || o.csvWriter == nil {
		return nil
	}

	record := []string{
		strconv.FormatUint(row.BlockNumber, 10),
		strconv.FormatInt(row.Timestamp, 10),
		strconv.Itoa(row.TxCount),
	}
	for _, category := range models.AllCategories {
		record = append(record, strconv.FormatUint(row.CategoryCounts[category], 10))
	}
	record = append(record,
		strconv.FormatUint(row.BlockGasUsed, 10),
		strconv.FormatUint(row.BlockGasLimit, 10),
	)

	if err := o.csvWriter.Write(record); err != nil {
		return fmt.Errorf("写入CSV行失败: %w", err)
	}
	return nil
}

// Close 刷新并关闭文件
func (o *FileOutput) Close() error {
	if o.csvWriter != nil {
		o.csvWriter.Flush()
		if err := o.csvWriter.Error(); err != nil {
			o.csvFile.Close()
			return fmt.Errorf("刷新CSV文件失败: %w", err)
		}
	}
	if o.csvFile != nil {
		if err := o.csvFile.Close(); err != nil {
			return fmt.Errorf("关闭CSV文件失败: %w", err)
		}
	}
	return nil
}
