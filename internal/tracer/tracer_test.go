package tracer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller 返回预设trace结果的假RPC调用器
type fakeCaller struct {
	method string
	traces []map[string]interface{}
	err    error
}

func (f *fakeCaller) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	f.method = method
	if f.err != nil {
		return f.err
	}
	*(result.(*[]map[string]interface{})) = f.traces
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, mode)

	mode, err = ParseMode("none")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, mode)

	mode, err = ParseMode("Erigon")
	require.NoError(t, err)
	assert.Equal(t, ModeErigon, mode)

	mode, err = ParseMode("GETH")
	require.NoError(t, err)
	assert.Equal(t, ModeGeth, mode)

	_, err = ParseMode("parity")
	assert.Error(t, err)
}

func TestTracer_Enabled(t *testing.T) {
	logger := quietLogger()

	assert.False(t, NewTracer(&fakeCaller{}, ModeNone, logger).Enabled())
	assert.False(t, NewTracer(nil, ModeErigon, logger).Enabled())
	assert.True(t, NewTracer(&fakeCaller{}, ModeErigon, logger).Enabled())
	assert.True(t, NewTracer(&fakeCaller{}, ModeGeth, logger).Enabled())
}

func TestTraceBlockValue_ModeNone(t *testing.T) {
	tracer := NewTracer(&fakeCaller{}, ModeNone, quietLogger())

	total := tracer.TraceBlockValue(context.Background(), 100)

	assert.Equal(t, int64(0), total.Int64())
}

func TestTraceBlockValue_Erigon(t *testing.T) {
	caller := &fakeCaller{
		traces: []map[string]interface{}{
			{
				"type":   "call",
				"action": map[string]interface{}{"value": "0xde0b6b3a7640000"}, // 1 ETH
			},
			{
				"type":   "call",
				"action": map[string]interface{}{"value": "0x6f05b59d3b20000"}, // 0.5 ETH
			},
			{
				// 非call类型不计入
				"type":   "create",
				"action": map[string]interface{}{"value": "0xde0b6b3a7640000"},
			},
		},
	}
	tracer := NewTracer(caller, ModeErigon, quietLogger())

	total := tracer.TraceBlockValue(context.Background(), 100)

	assert.Equal(t, "trace_block", caller.method)
	expected, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, expected.Cmp(total))
}

func TestTraceBlockValue_GethNestedCalls(t *testing.T) {
	// result包装下的调用树，value按节点递归累加
	caller := &fakeCaller{
		traces: []map[string]interface{}{
			{
				"result": map[string]interface{}{
					"value": "0xde0b6b3a7640000", // 1 ETH
					"calls": []interface{}{
						map[string]interface{}{
							"value": "0x6f05b59d3b20000", // 0.5 ETH
							"calls": []interface{}{
								map[string]interface{}{"value": "0x3782dace9d90000"}, // 0.25 ETH
							},
						},
					},
				},
			},
		},
	}
	tracer := NewTracer(caller, ModeGeth, quietLogger())

	total := tracer.TraceBlockValue(context.Background(), 100)

	assert.Equal(t, "debug_traceBlockByNumber", caller.method)
	expected, _ := new(big.Int).SetString("1750000000000000000", 10)
	assert.Equal(t, 0, expected.Cmp(total))
}

func TestTraceBlockValue_FailureReturnsZero(t *testing.T) {
	// 追踪失败吞掉错误并返回0，不中断主流水线
	caller := &fakeCaller{err: fmt.Errorf("节点不支持trace接口")}

	tracer := NewTracer(caller, ModeErigon, quietLogger())
	assert.Equal(t, int64(0), tracer.TraceBlockValue(context.Background(), 100).Int64())

	tracer = NewTracer(caller, ModeGeth, quietLogger())
	assert.Equal(t, int64(0), tracer.TraceBlockValue(context.Background(), 100).Int64())
}

func TestSumCallTraces(t *testing.T) {
	traces := []map[string]interface{}{
		{"type": "call", "action": map[string]interface{}{"value": "0x64"}},
		{"type": "call", "action": map[string]interface{}{"value": "0x36"}},
		{"type": "call"},                            // 缺action
		{"type": "call", "action": "不是映射"},          // action类型错误
		{"type": "suicide", "action": map[string]interface{}{"value": "0x64"}}, // 非call
		{"type": "call", "action": map[string]interface{}{"value": "无效"}},      // 无效金额
	}

	total := SumCallTraces(traces)

	assert.Equal(t, int64(0x64+0x36), total.Int64())
}

func TestSumCallTree(t *testing.T) {
	node := map[string]interface{}{
		"value": "0x0a",
		"calls": []interface{}{
			map[string]interface{}{"value": "0x05"},
			map[string]interface{}{
				"value": "0x03",
				"calls": []interface{}{
					map[string]interface{}{"value": "0x02"},
				},
			},
			"不是映射的子节点",
		},
	}

	assert.Equal(t, int64(0x0a+0x05+0x03+0x02), SumCallTree(node).Int64())
}

func TestSumCallTree_NoValue(t *testing.T) {
	assert.Equal(t, int64(0), SumCallTree(map[string]interface{}{}).Int64())
}

func TestParseHexValue(t *testing.T) {
	assert.Nil(t, parseHexValue(nil))
	assert.Nil(t, parseHexValue(123))
	assert.Nil(t, parseHexValue("no-prefix"))
	assert.Nil(t, parseHexValue("0xzz"))

	value := parseHexValue("0xff")
	require.NotNil(t, value)
	assert.Equal(t, int64(255), value.Int64())

	// "0x"后为空串同样解析失败
	assert.Nil(t, parseHexValue("0x"))
}
