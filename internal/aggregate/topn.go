package aggregate

import (
	"sort"

	"profiler/pkg/models"
)

// TopN 汇总输出的top列表长度
const TopN = 20

// Counter 键到出现次数的频率计数器
// 读取时排序截断；计数相同的键按首次出现顺序排列
type Counter struct {
	counts map[string]uint64
	order  []string // 键的首次出现顺序
}

// NewCounter 创建频率计数器
func NewCounter() *Counter {
	return &Counter{
		counts: make(map[string]uint64),
	}
}

// Add 为键增加计数
func (c *Counter) Add(key string, n uint64) {
	if key == "" || n == 0 {
		return
	}
	if _, exists := c.counts[key]; !exists {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// Get 查询键的当前计数
func (c *Counter) Get(key string) uint64 {
	return c.counts[key]
}

// Len 当前不同键的数量
func (c *Counter) Len() int {
	return len(c.counts)
}

// MostCommon 返回计数最高的前n个键
// 稳定排序保证平局时保持首次出现顺序
func (c *Counter) MostCommon(n int) []models.AddressCount {
	keys := make([]string, len(c.order))
	copy(keys, c.order)

	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})

	if n > len(keys) {
		n = len(keys)
	}

	result := make([]models.AddressCount, 0, n)
	for _, key := range keys[:n] {
		result = append(result, models.AddressCount{Address: key, Count: c.counts[key]})
	}
	return result
}
