package aggregate

import (
	"fmt"
	"math/big"
	"strings"
)

// 单位换算常量
var (
	weiPerEth  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weiPerGwei = big.NewInt(1_000_000_000)
)

// AvgGasPriceDigits 平均gas价格保留的小数位数（gwei）
const AvgGasPriceDigits = 4

// WeiToEth 将wei转换为ETH的十进制字符串（精确值，去除末尾多余的0）
func WeiToEth(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	rat := new(big.Rat).SetFrac(wei, weiPerEth)
	return trimDecimal(rat.FloatString(18))
}

// EthToWei 将ETH十进制字符串解析回wei（截断到整数wei）
func EthToWei(eth string) (*big.Int, error) {
	if eth == "" || eth == "0" {
		return new(big.Int), nil
	}
	rat, ok := new(big.Rat).SetString(eth)
	if !ok {
		return nil, fmt.Errorf("无法解析ETH数值: %s", eth)
	}
	rat.Mul(rat, new(big.Rat).SetInt(weiPerEth))
	return new(big.Int).Quo(rat.Num(), rat.Denom()), nil
}

// AvgGasPriceGwei 计算平均gas价格（gwei，定点4位小数）
// count为0时返回"0"，与参考行为一致
func AvgGasPriceGwei(gasPriceWeiSum *big.Int, count uint64) string {
	if count == 0 || gasPriceWeiSum == nil {
		return "0"
	}
	divisor := new(big.Int).Mul(new(big.Int).SetUint64(count), weiPerGwei)
	rat := new(big.Rat).SetFrac(gasPriceWeiSum, divisor)
	return rat.FloatString(AvgGasPriceDigits)
}

// GweiAvgToWeiSum 从已舍入的gwei均值和计数重建wei总和
// 重建值相对原始总和存在有界的舍入误差（可接受的近似）
func GweiAvgToWeiSum(avgGwei string, count uint64) (*big.Int, error) {
	if avgGwei == "" || avgGwei == "0" || count == 0 {
		return new(big.Int), nil
	}
	rat, ok := new(big.Rat).SetString(avgGwei)
	if !ok {
		return nil, fmt.Errorf("无法解析gwei均值: %s", avgGwei)
	}
	rat.Mul(rat, new(big.Rat).SetInt(weiPerGwei))
	rat.Mul(rat, new(big.Rat).SetUint64(count))
	return new(big.Int).Quo(rat.Num(), rat.Denom()), nil
}

// trimDecimal 去除定点小数末尾的0及孤立的小数点
func trimDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
