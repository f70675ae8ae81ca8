package profiler

import (
	"context"
	"fmt"

	"profiler/internal/aggregate"
	"profiler/internal/classify"
	"profiler/internal/config"
	"profiler/internal/decoder"
	"profiler/internal/errors"
	"profiler/internal/logging"
	"profiler/internal/output"
	"profiler/internal/progress"
	"profiler/internal/tracer"
	"profiler/internal/validation"
	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
)

// Profiler 区块区间交易剖析器
// 按分块顺序处理区块，每个区块内并发取收据、单线程折叠，
// 分块汇总最终合并为整体汇总
type Profiler struct {
	client       LedgerClient
	cfg          *config.ProfilerConfig
	classifier   *classify.Classifier
	scheduler    *ReceiptScheduler
	tracer       *tracer.Tracer
	decoder      *decoder.MethodDecoder
	out          output.Output
	progress     *progress.Manager
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	logger       *logrus.Logger
}

// New 创建剖析器
// progressMgr为nil时不做断点续跑
func New(client LedgerClient, cfg *config.ProfilerConfig, decoderCfg *config.DecoderConfig,
	out output.Output, progressMgr *progress.Manager, logger *logrus.Logger) (*Profiler, error) {

	validator := validation.NewValidator(logger)
	if result := validator.ValidateProfilerConfig(cfg); !result.Valid {
		return nil, result.FirstError()
	}

	traceMode, err := tracer.ParseMode(cfg.TraceMode)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfig, errors.SeverityFatal,
			"INVALID_TRACE_MODE", "解析追踪模式失败")
	}

	return &Profiler{
		client:       client,
		cfg:          cfg,
		classifier:   classify.NewClassifier(client, cfg.SkipContractCheck, logger),
		scheduler:    NewReceiptScheduler(client, cfg.ReceiptWorkers, logger),
		tracer:       tracer.NewTracer(client, traceMode, logger),
		decoder:      decoder.NewMethodDecoder(logger, decoderCfg),
		out:          out,
		progress:     progressMgr,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(logger),
		logger:       logger,
	}, nil
}

// Run 剖析指定闭区间的区块并输出汇总
func (p *Profiler) Run(ctx context.Context, startBlock, endBlock uint64) (*models.OverallSummary, error) {
	if result := p.validator.ValidateRange(startBlock, endBlock); !result.Valid {
		return nil, result.FirstError()
	}

	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConnection, errors.SeverityFatal,
			"CHAIN_ID_FAILED", "查询链ID失败")
	}

	p.logger.WithFields(logrus.Fields{
		"start_block": startBlock,
		"end_block":   endBlock,
		"chain_id":    chainID,
		"chunk_size":  p.cfg.ChunkSize,
		"workers":     p.cfg.ReceiptWorkers,
	}).Info("开始区块区间剖析")

	// 断点续跑：加载已完成的分块
	var savedChunks map[uint64]*models.ChunkSummary
	if p.progress != nil {
		if err := p.progress.BeginRun(startBlock, endBlock, p.cfg.ChunkSize); err != nil {
			p.logger.Warnf("初始化进度记录失败，本次运行不做断点续跑: %v", err)
		} else if loaded, err := p.progress.LoadChunks(); err != nil {
			p.logger.Warnf("加载分块进度失败: %v", err)
		} else {
			savedChunks = loaded
		}
	}

	var chunks []*models.ChunkSummary
	var runTotal uint64
	capReached := false

	for chunkStart := startBlock; chunkStart <= endBlock && !capReached; {
		chunkEnd := chunkStart + p.cfg.ChunkSize - 1
		if chunkEnd > endBlock {
			chunkEnd = endBlock
		}

		if saved, exists := savedChunks[chunkStart]; exists {
			p.logger.Debugf("分块 [%d-%d] 已有进度记录，跳过", chunkStart, chunkEnd)
			chunks = append(chunks, saved)
			runTotal += saved.TotalTx
			chunkStart = chunkEnd + 1
			continue
		}

		summary, reachedCap, err := p.processChunk(ctx, chunkStart, chunkEnd, runTotal)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, summary)
		runTotal += summary.TotalTx
		capReached = reachedCap

		if p.progress != nil {
			if err := p.progress.SaveChunk(chunkStart, summary); err != nil {
				p.logger.Warnf("保存分块 [%d-%d] 进度失败: %v", chunkStart, chunkEnd, err)
			}
		}

		chunkStart = chunkEnd + 1
	}

	overall, err := aggregate.MergeSummaries(chunks)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.SeverityFatal,
			"MERGE_FAILED", "合并分块汇总失败")
	}

	overall.ChainID = chainID
	overall.Limits = &models.Limits{
		TxCap:             p.cfg.TxCap,
		SkipContractCheck: p.cfg.SkipContractCheck,
		Concurrency:       p.cfg.ReceiptWorkers,
		ChunkSize:         p.cfg.ChunkSize,
		TraceMode:         p.cfg.TraceMode,
	}
	overall.Notes = p.buildNotes(overall, len(chunks), capReached)

	if err := p.out.WriteSummary(overall); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityFatal,
			"SUMMARY_WRITE_FAILED", "写入汇总失败")
	}

	p.logTopMethods(overall)
	p.logger.WithFields(logrus.Fields{
		"block_count": overall.BlockCount,
		"total_tx":    overall.TotalTx,
		"dropped":     overall.DroppedReceipts,
	}).Info("区块区间剖析完成")

	return overall, nil
}

// processChunk 处理一个分块并定稿其汇总
// 返回值第二项表示交易上限是否在本分块内被触发
func (p *Profiler) processChunk(ctx context.Context, chunkStart, chunkEnd, runTotal uint64) (*models.ChunkSummary, bool, error) {
	chunkLogger := logging.NewChunkLogger(p.logger, chunkStart, chunkEnd)
	chunkLogger.Debug("开始处理分块")

	agg := aggregate.NewChunkAggregator(chunkStart, chunkEnd)
	capReached := false

	for blockNumber := chunkStart; blockNumber <= chunkEnd; blockNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, false, errors.WrapError(err, errors.ErrorTypeSystem, errors.SeverityFatal,
				"RUN_CANCELLED", "剖析运行被取消").WithBlockNumber(blockNumber)
		}

		block, txs, err := p.client.GetBlock(ctx, blockNumber)
		if err != nil {
			// 区块本身取不到就无法给出可信汇总，按致命处理
			return nil, false, errors.WrapError(err, errors.ErrorTypeBlockchain, errors.SeverityFatal,
				"BLOCK_FETCH_FAILED", "区块获取失败").WithBlockNumber(blockNumber)
		}

		fetches := p.scheduler.FetchReceipts(ctx, txs)

		blockCounts := make(map[models.Category]uint64)
		blockTxCount := 0

		for _, fetch := range fetches {
			if fetch.Err != nil {
				// 单笔收据失败降级：跳过该交易并计数
				agg.RecordDropped()
				p.errorHandler.HandleError(errors.WrapError(fetch.Err,
					errors.ErrorTypeReceipt, errors.SeverityDegraded,
					"RECEIPT_FETCH_FAILED", "交易收据获取失败").
					WithBlockNumber(blockNumber).WithTxHash(fetch.Tx.Hash))
				continue
			}

			if result := p.validator.ValidateReceipt(fetch.Receipt); len(result.Warnings) > 0 {
				for _, warning := range result.Warnings {
					p.logger.Debugf("收据 %s 数据异常: %s", fetch.Tx.Hash, warning)
				}
			}

			outcome := p.classifier.Classify(ctx, fetch.Tx, fetch.Receipt)

			txOutcome := &aggregate.TxOutcome{
				Category:     outcome.Category,
				GasUsed:      fetch.Receipt.GasUsed,
				GasPriceWei:  fetch.Tx.GasPrice,
				ValueWei:     fetch.Tx.Value,
				Sender:       fetch.Tx.From,
				Recipient:    fetch.Tx.To,
				Counterparty: outcome.Counterparty,
			}
			if !fetch.Tx.IsContractCreation() {
				if selector, ok := decoder.Selector(fetch.Tx.Input); ok {
					txOutcome.MethodSelector = selector
				}
			}

			agg.Fold(txOutcome)
			blockCounts[outcome.Category]++
			blockTxCount++

			// 交易上限：达到后停止折叠，已取回的剩余收据直接丢弃
			if p.cfg.TxCap > 0 && runTotal+agg.TotalTx() >= p.cfg.TxCap {
				capReached = true
				break
			}
		}

		// 内部转账追踪（尽力而为，失败计为0）
		if p.tracer.Enabled() {
			agg.AddInternalValue(p.tracer.TraceBlockValue(ctx, blockNumber))
		}

		if err := p.out.WriteBlockRow(&models.BlockRow{
			BlockNumber:    blockNumber,
			Timestamp:      block.Timestamp.Unix(),
			TxCount:        blockTxCount,
			CategoryCounts: blockCounts,
			BlockGasUsed:   block.GasUsed,
			BlockGasLimit:  block.GasLimit,
		}); err != nil {
			p.logger.Warnf("写入区块 %d 的CSV行失败: %v", blockNumber, err)
		}

		if capReached {
			// 汇总必须报告真实覆盖到的区间
			agg.SetEndBlock(blockNumber)
			chunkLogger.WithField("block_number", blockNumber).Info("达到交易上限，提前结束")
			break
		}
	}

	summary := agg.Close()
	chunkLogger.WithFields(logrus.Fields{
		"total_tx": summary.TotalTx,
		"dropped":  summary.DroppedReceipts,
	}).Debug("分块处理完成")

	return summary, capReached, nil
}

// buildNotes 生成汇总的说明条目
func (p *Profiler) buildNotes(overall *models.OverallSummary, chunkCount int, capReached bool) []string {
	notes := make([]string, 0, 4)

	if p.cfg.SkipContractCheck {
		notes = append(notes, "skip_contract_check enabled: other_contract_call may include plain EOA calls")
	}
	if capReached {
		notes = append(notes, fmt.Sprintf("tx cap %d reached: coverage truncated at block %d", p.cfg.TxCap, overall.EndBlock))
	}
	if overall.DroppedReceipts > 0 {
		notes = append(notes, fmt.Sprintf("%d transactions dropped due to receipt fetch failures", overall.DroppedReceipts))
	}
	if chunkCount > 1 {
		notes = append(notes, "unique sender/receiver counts are per-chunk only; -1 marks unreliable merged counts")
	}
	if !p.tracer.Enabled() {
		notes = append(notes, "internal value tracing disabled: total_internal_value_eth is 0")
	}

	return notes
}

// logTopMethods 把top方法选择器解析成可读方法名写进日志
func (p *Profiler) logTopMethods(overall *models.OverallSummary) {
	for _, entry := range overall.TopMethods {
		name := p.decoder.ResolveName(entry.Address)
		p.logger.WithFields(logrus.Fields{
			"selector": entry.Address,
			"method":   name,
			"count":    entry.Count,
		}).Debug("高频方法选择器")
	}
}

// ErrorStats 运行期错误统计
func (p *Profiler) ErrorStats() *errors.ErrorStats {
	return p.errorHandler.GetStats()
}

// ContractCacheSize 合约代码缓存条目数
func (p *Profiler) ContractCacheSize() int {
	return p.classifier.CacheSize()
}
