package classify

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"profiler/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// fakeCodeChecker 按地址返回预设代码的假实现，并记录调用次数
type fakeCodeChecker struct {
	codes map[string][]byte
	errs  map[string]error
	calls int
}

func (f *fakeCodeChecker) CodeAt(ctx context.Context, address string) ([]byte, error) {
	f.calls++
	if err, exists := f.errs[address]; exists {
		return nil, err
	}
	return f.codes[address], nil
}

func newTestClassifier(checker CodeChecker, skip bool) *Classifier {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewClassifier(checker, skip, logger)
}

func TestClassify_ContractCreation(t *testing.T) {
	c := newTestClassifier(&fakeCodeChecker{}, false)

	tx := &models.Transaction{
		Hash:  "0x01",
		From:  "0xaaaa000000000000000000000000000000000001",
		To:    "", // to为空即合约创建
		Value: big.NewInt(0),
	}

	outcome := c.Classify(context.Background(), tx, &models.Receipt{})

	assert.Equal(t, models.CategoryContractCreation, outcome.Category)
	assert.Empty(t, outcome.Counterparty)
}

func TestClassify_CreationWinsOverTokenLogs(t *testing.T) {
	// 合约创建规则优先于日志判定
	c := newTestClassifier(&fakeCodeChecker{}, false)

	tx := &models.Transaction{Hash: "0x02", To: ""}
	receipt := &models.Receipt{Logs: []*models.TransactionLog{erc20Log("0xtoken")}}

	outcome := c.Classify(context.Background(), tx, receipt)

	assert.Equal(t, models.CategoryContractCreation, outcome.Category)
}

func TestClassify_TokenCategories(t *testing.T) {
	c := newTestClassifier(&fakeCodeChecker{}, false)
	tx := &models.Transaction{
		Hash:  "0x03",
		To:    "0xcccc000000000000000000000000000000000003",
		Value: big.NewInt(0),
	}

	cases := []struct {
		name     string
		logs     []*models.TransactionLog
		expected models.Category
	}{
		{"erc20", []*models.TransactionLog{erc20Log("0xaaaa000000000000000000000000000000000001")}, models.CategoryERC20Transfer},
		{"erc721", []*models.TransactionLog{erc721Log("0xbbbb000000000000000000000000000000000002")}, models.CategoryERC721Transfer},
		{"erc1155", []*models.TransactionLog{erc1155Log("0xcccc000000000000000000000000000000000003")}, models.CategoryERC1155Transfer},
		{"mixed", []*models.TransactionLog{
			erc20Log("0xaaaa000000000000000000000000000000000001"),
			erc721Log("0xbbbb000000000000000000000000000000000002"),
		}, models.CategoryMixedTokenActivity},
	}

	for _, tc := range cases {
		outcome := c.Classify(context.Background(), tx, &models.Receipt{Logs: tc.logs})
		assert.Equal(t, tc.expected, outcome.Category, tc.name)
		assert.NotEmpty(t, outcome.Counterparty, tc.name)
	}
}

func TestClassify_TokenWinsOverValue(t *testing.T) {
	// 代币日志优先于金额判定：带金额的ERC20转账仍归ERC20
	c := newTestClassifier(&fakeCodeChecker{}, false)

	tx := &models.Transaction{
		Hash:  "0x04",
		To:    "0xcccc000000000000000000000000000000000003",
		Value: big.NewInt(1_000_000_000_000_000_000),
	}
	receipt := &models.Receipt{Logs: []*models.TransactionLog{erc20Log("0xaaaa000000000000000000000000000000000001")}}

	outcome := c.Classify(context.Background(), tx, receipt)

	assert.Equal(t, models.CategoryERC20Transfer, outcome.Category)
}

func TestClassify_EthTransfer(t *testing.T) {
	checker := &fakeCodeChecker{}
	c := newTestClassifier(checker, false)

	tx := &models.Transaction{
		Hash:  "0x05",
		To:    "0xdddd000000000000000000000000000000000004",
		Value: big.NewInt(100),
	}

	outcome := c.Classify(context.Background(), tx, &models.Receipt{})

	assert.Equal(t, models.CategoryEthTransfer, outcome.Category)
	// 金额大于0时不需要查询合约代码
	assert.Equal(t, 0, checker.calls)
}

func TestClassify_SkipContractCheck(t *testing.T) {
	checker := &fakeCodeChecker{}
	c := newTestClassifier(checker, true)

	tx := &models.Transaction{
		Hash:  "0x06",
		To:    "0xdddd000000000000000000000000000000000004",
		Value: big.NewInt(0),
	}

	outcome := c.Classify(context.Background(), tx, &models.Receipt{})

	// 跳过检查时统一按合约调用计，不发起代码查询
	assert.Equal(t, models.CategoryOtherContractCall, outcome.Category)
	assert.Equal(t, 0, checker.calls)
}

func TestClassify_ContractVsEOA(t *testing.T) {
	contractAddr := "0xeeee000000000000000000000000000000000005"
	eoaAddr := "0xffff000000000000000000000000000000000006"

	checker := &fakeCodeChecker{
		codes: map[string][]byte{
			contractAddr: {0x60, 0x80, 0x60, 0x40},
		},
	}
	c := newTestClassifier(checker, false)

	txContract := &models.Transaction{Hash: "0x07", To: contractAddr, Value: big.NewInt(0)}
	txEOA := &models.Transaction{Hash: "0x08", To: eoaAddr, Value: big.NewInt(0)}

	assert.Equal(t, models.CategoryOtherContractCall,
		c.Classify(context.Background(), txContract, &models.Receipt{}).Category)
	assert.Equal(t, models.CategoryOtherEOACall,
		c.Classify(context.Background(), txEOA, &models.Receipt{}).Category)
}

func TestClassify_CodeCheckFailureFallsBackToEOA(t *testing.T) {
	addr := "0xeeee000000000000000000000000000000000005"
	checker := &fakeCodeChecker{
		errs: map[string]error{addr: fmt.Errorf("节点超时")},
	}
	c := newTestClassifier(checker, false)

	tx := &models.Transaction{Hash: "0x09", To: addr, Value: big.NewInt(0)}

	outcome := c.Classify(context.Background(), tx, &models.Receipt{})

	// 查询失败按EOA处理
	assert.Equal(t, models.CategoryOtherEOACall, outcome.Category)
}

func TestClassify_ContractCacheHit(t *testing.T) {
	addr := "0xeeee000000000000000000000000000000000005"
	checker := &fakeCodeChecker{
		codes: map[string][]byte{addr: {0x60, 0x80}},
	}
	c := newTestClassifier(checker, false)

	tx := &models.Transaction{Hash: "0x0a", To: addr, Value: big.NewInt(0)}

	c.Classify(context.Background(), tx, &models.Receipt{})
	c.Classify(context.Background(), tx, &models.Receipt{})
	c.Classify(context.Background(), tx, &models.Receipt{})

	// 同一地址只查询一次
	assert.Equal(t, 1, checker.calls)
	assert.Equal(t, 1, c.CacheSize())
}

func TestClassify_CacheIsCaseInsensitive(t *testing.T) {
	checker := &fakeCodeChecker{}
	c := newTestClassifier(checker, false)

	lower := &models.Transaction{Hash: "0x0b", To: "0xeeee000000000000000000000000000000000005", Value: big.NewInt(0)}
	upper := &models.Transaction{Hash: "0x0c", To: "0xEEEE000000000000000000000000000000000005", Value: big.NewInt(0)}

	c.Classify(context.Background(), lower, &models.Receipt{})
	c.Classify(context.Background(), upper, &models.Receipt{})

	assert.Equal(t, 1, checker.calls)
}

func TestClassify_ZeroCodePlaceholderIsEOA(t *testing.T) {
	addr := "0xeeee000000000000000000000000000000000005"
	checker := &fakeCodeChecker{
		codes: map[string][]byte{addr: {0x00}}, // 单字节0x00占位
	}
	c := newTestClassifier(checker, false)

	tx := &models.Transaction{Hash: "0x0d", To: addr, Value: big.NewInt(0)}

	assert.Equal(t, models.CategoryOtherEOACall,
		c.Classify(context.Background(), tx, &models.Receipt{}).Category)
}

func TestClassify_NilReceipt(t *testing.T) {
	c := newTestClassifier(&fakeCodeChecker{}, true)

	tx := &models.Transaction{Hash: "0x0e", To: "0xdddd000000000000000000000000000000000004", Value: big.NewInt(0)}

	// 收据缺失时按无日志处理，不触发空指针
	outcome := c.Classify(context.Background(), tx, nil)
	assert.Equal(t, models.CategoryOtherContractCall, outcome.Category)
}
