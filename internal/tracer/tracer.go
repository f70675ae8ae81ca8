package tracer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// Mode 内部转账追踪后端
type Mode string

const (
	ModeNone   Mode = "none"   // 不追踪
	ModeErigon Mode = "erigon" // Erigon/OpenEthereum trace_block
	ModeGeth   Mode = "geth"   // Geth debug_traceBlockByNumber + callTracer
)

// ParseMode 解析追踪后端标识
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ModeNone, nil
	case "erigon":
		return ModeErigon, nil
	case "geth":
		return ModeGeth, nil
	default:
		return ModeNone, fmt.Errorf("不支持的追踪模式: %s", s)
	}
}

// RPCCaller 原始JSON-RPC调用接口（由ethclient底层的rpc.Client实现）
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Tracer 内部转账金额追踪器
// 尽力而为：任何获取或解析失败都吞掉并返回0，绝不中断主流水线
type Tracer struct {
	caller RPCCaller
	mode   Mode
	logger *logrus.Logger
}

// NewTracer 创建追踪器
func NewTracer(caller RPCCaller, mode Mode, logger *logrus.Logger) *Tracer {
	return &Tracer{
		caller: caller,
		mode:   mode,
		logger: logger,
	}
}

// Enabled 是否启用追踪
func (t *Tracer) Enabled() bool {
	return t.mode != ModeNone && t.caller != nil
}

// TraceBlockValue 返回指定区块内所有内部调用转移的金额总和（wei）
// 失败时返回0
func (t *Tracer) TraceBlockValue(ctx context.Context, blockNumber uint64) *big.Int {
	switch t.mode {
	case ModeErigon:
		return t.traceBlockErigon(ctx, blockNumber)
	case ModeGeth:
		return t.traceBlockGeth(ctx, blockNumber)
	default:
		return new(big.Int)
	}
}

// traceBlockErigon 通过trace_block一次请求取回整个区块的trace列表，
// 累加所有call类型顶层trace的value字段
func (t *Tracer) traceBlockErigon(ctx context.Context, blockNumber uint64) *big.Int {
	var traces []map[string]interface{}
	err := t.caller.CallContext(ctx, &traces, "trace_block", hexutil.EncodeUint64(blockNumber))
	if err != nil {
		t.logger.Debugf("trace_block 区块 %d 失败: %v", blockNumber, err)
		return new(big.Int)
	}
	return SumCallTraces(traces)
}

// traceBlockGeth 通过debug_traceBlockByNumber的callTracer取回调用树，
// 递归累加每个节点的value字段（不限深度）
func (t *Tracer) traceBlockGeth(ctx context.Context, blockNumber uint64) *big.Int {
	var results []map[string]interface{}
	err := t.caller.CallContext(ctx, &results, "debug_traceBlockByNumber",
		hexutil.EncodeUint64(blockNumber), map[string]interface{}{"tracer": "callTracer"})
	if err != nil {
		t.logger.Debugf("debug_traceBlockByNumber 区块 %d 失败: %v", blockNumber, err)
		return new(big.Int)
	}

	total := new(big.Int)
	for _, txResult := range results {
		// 不同节点版本的结果包装不一致：优先result字段，其次calls，最后取整体
		if root, ok := txResult["result"].(map[string]interface{}); ok {
			total.Add(total, SumCallTree(root))
			continue
		}
		if calls, ok := txResult["calls"].([]interface{}); ok {
			for _, call := range calls {
				if node, ok := call.(map[string]interface{}); ok {
					total.Add(total, SumCallTree(node))
				}
			}
			continue
		}
		total.Add(total, SumCallTree(txResult))
	}
	return total
}

// SumCallTraces 累加trace列表中所有call类型条目的金额
func SumCallTraces(traces []map[string]interface{}) *big.Int {
	total := new(big.Int)
	for _, trace := range traces {
		if traceType, _ := trace["type"].(string); traceType != "call" {
			continue
		}
		action, ok := trace["action"].(map[string]interface{})
		if !ok {
			continue
		}
		if value := parseHexValue(action["value"]); value != nil {
			total.Add(total, value)
		}
	}
	return total
}

// SumCallTree 递归累加调用树中每个节点的value字段
// 显式返回累加值，不依赖共享可变状态
func SumCallTree(node map[string]interface{}) *big.Int {
	total := new(big.Int)
	if value := parseHexValue(node["value"]); value != nil {
		total.Add(total, value)
	}

	calls, ok := node["calls"].([]interface{})
	if !ok {
		return total
	}
	for _, call := range calls {
		if child, ok := call.(map[string]interface{}); ok {
			total.Add(total, SumCallTree(child))
		}
	}
	return total
}

// parseHexValue 解析0x前缀的十六进制金额，无法解析时返回nil
func parseHexValue(v interface{}) *big.Int {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil
	}
	value, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return nil
	}
	return value
}
