package decoder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"profiler/internal/config"

	"github.com/sirupsen/logrus"
)

// MethodDecoder 方法选择器解码器
// 从交易输入数据提取4字节方法选择器，并尽量解析出可读的方法名
type MethodDecoder struct {
	logger *logrus.Logger
	mu     sync.Mutex
	cache  map[string]string     // 选择器到方法名的缓存
	config *config.DecoderConfig // 解码器配置
	client *http.Client          // HTTP客户端
}

// FourByteResponse 4byte.directory API响应
type FourByteResponse struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  []signature `json:"results"`
}

type signature struct {
	ID             int    `json:"id"`
	CreatedAt      string `json:"created_at"`
	TextSignature  string `json:"text_signature"`
	HexSignature   string `json:"hex_signature"`
	BytesSignature string `json:"bytes_signature"`
}

// 常见的ERC方法选择器，API不可用时兜底
var wellKnownMethods = map[string]string{
	"0xa9059cbb": "transfer(address,uint256)",
	"0x095ea7b3": "approve(address,uint256)",
	"0x23b872dd": "transferFrom(address,address,uint256)",
	"0x70a08231": "balanceOf(address)",
	"0xdd62ed3e": "allowance(address,address)",
	"0x42842e0e": "safeTransferFrom(address,address,uint256)",
	"0xf242432a": "safeTransferFrom(address,address,uint256,uint256,bytes)",
	"0x2eb2c2d6": "safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)",
	"0xa22cb465": "setApprovalForAll(address,bool)",
	"0x40c10f19": "mint(address,uint256)",
	"0x42966c68": "burn(uint256)",
	"0xd0e30db0": "deposit()",
	"0x2e1a7d4d": "withdraw(uint256)",
	"0x7ff36ab5": "swapExactETHForTokens(uint256,address[],address,uint256)",
	"0x38ed1739": "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
}

// NewMethodDecoder 创建方法解码器
func NewMethodDecoder(logger *logrus.Logger, decoderConfig *config.DecoderConfig) *MethodDecoder {
	if decoderConfig == nil {
		decoderConfig = &config.DecoderConfig{
			FourByteAPIURL: "https://www.4byte.directory/api/v1/signatures/",
			APITimeout:     "5s",
			EnableCache:    true,
			CacheSize:      10000,
			EnableAPI:      false,
		}
	}

	// 解析超时时间
	timeout, err := time.ParseDuration(decoderConfig.APITimeout)
	if err != nil {
		timeout = 5 * time.Second
		logger.Warnf("解析API超时时间失败，使用默认值5s: %v", err)
	}

	if decoderConfig.CacheSize <= 0 {
		decoderConfig.CacheSize = 10000
	}

	return &MethodDecoder{
		logger: logger,
		cache:  make(map[string]string),
		config: decoderConfig,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Selector 从交易输入数据提取4字节方法选择器
// 输入不足4字节时返回false（纯ETH转账或异常数据）
func Selector(input string) (string, bool) {
	data := strings.TrimPrefix(input, "0x")
	if len(data) < 8 {
		return "", false
	}
	return "0x" + strings.ToLower(data[:8]), true
}

// ResolveName 解析方法选择器对应的方法名
// 顺序：缓存 -> 常见方法表 -> 4byte.directory API（可选）
func (d *MethodDecoder) ResolveName(selector string) string {
	selector = strings.ToLower(selector)

	// 首先检查缓存
	if d.config.EnableCache {
		d.mu.Lock()
		if name, exists := d.cache[selector]; exists {
			d.mu.Unlock()
			return name
		}
		d.mu.Unlock()
	}

	if name, exists := wellKnownMethods[selector]; exists {
		d.store(selector, name)
		return name
	}

	if d.config.EnableAPI {
		if name := d.fetchFromFourByteDirectory(selector); name != "" {
			d.store(selector, name)
			return name
		}
	}

	return "unknown"
}

// store 写入缓存
func (d *MethodDecoder) store(selector, name string) {
	if !d.config.EnableCache {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.cache) >= d.config.CacheSize {
		d.evictCacheLocked()
	}
	d.cache[selector] = name
}

// fetchFromFourByteDirectory 从4byte.directory API获取方法签名
func (d *MethodDecoder) fetchFromFourByteDirectory(selector string) string {
	url := fmt.Sprintf("%s?hex_signature=%s", d.config.FourByteAPIURL, selector)

	resp, err := d.client.Get(url)
	if err != nil {
		d.logger.Debugf("4byte.directory API调用失败: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Debugf("4byte.directory API返回错误状态: %d", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		d.logger.Debugf("读取4byte.directory响应失败: %v", err)
		return ""
	}

	var response FourByteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		d.logger.Debugf("解析4byte.directory响应失败: %v", err)
		return ""
	}

	if len(response.Results) > 0 {
		// 返回第一个匹配的签名
		return response.Results[0].TextSignature
	}

	return ""
}

// ClearCache 清理缓存
func (d *MethodDecoder) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]string)
}

// GetCacheSize 获取缓存大小
func (d *MethodDecoder) GetCacheSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// evictCacheLocked 清理部分缓存，调用方需持有锁
func (d *MethodDecoder) evictCacheLocked() {
	// 简单策略：清理一半的缓存
	targetSize := d.config.CacheSize / 2
	if targetSize <= 0 {
		targetSize = 1000
	}

	count := 0
	for key := range d.cache {
		if count >= len(d.cache)-targetSize {
			break
		}
		delete(d.cache, key)
		count++
	}

	d.logger.Debugf("缓存清理完成，剩余 %d 项", len(d.cache))
}

// GetConfig 获取解码器配置
func (d *MethodDecoder) GetConfig() *config.DecoderConfig {
	return d.config
}
