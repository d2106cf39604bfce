// Package money 统一处理代币最小单位与可读金额之间的换算。
//
// 所有金额以最小单位的十进制整数字符串存储和传输，配合 tokenSymbol
// 决定精度。统计、领取记录等所有调用方都必须经过这里换算。
package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals 未登记代币的默认精度
const DefaultDecimals int32 = 6

var tokenDecimals = map[string]int32{
	"USDC": 6,
	"MUSD": 18,
}

// Decimals 获取代币精度，符号大小写不敏感
func Decimals(tokenSymbol string) int32 {
	if d, ok := tokenDecimals[strings.ToUpper(strings.TrimSpace(tokenSymbol))]; ok {
		return d
	}
	return DefaultDecimals
}

// ParseMinor 解析最小单位整数字符串
func ParseMinor(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", amount)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}
	return v, nil
}

// ToHuman 最小单位 -> 可读金额
func ToHuman(amount string, tokenSymbol string) (decimal.Decimal, error) {
	v, err := ParseMinor(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(v, -Decimals(tokenSymbol)), nil
}

// FormatAmount 格式化为可读金额，至少保留两位小数且不丢失精度，
// 例如 USDC "1000000" -> "1.00"，"1234567" -> "1.234567"
func FormatAmount(amount string, tokenSymbol string) (string, error) {
	d, err := ToHuman(amount, tokenSymbol)
	if err != nil {
		return "", err
	}
	return formatDecimal(d), nil
}

// FormatMinor 格式化 big.Int 形式的最小单位金额
func FormatMinor(amount *big.Int, tokenSymbol string) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return formatDecimal(decimal.NewFromBigInt(amount, -Decimals(tokenSymbol)))
}

func formatDecimal(d decimal.Decimal) string {
	// String 会去掉末尾的 0
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > 2 {
		return s
	}
	return d.StringFixed(2)
}

// ParseAmount 可读金额 -> 最小单位整数字符串，超过代币精度时报错
func ParseAmount(human string, tokenSymbol string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", human, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("amount %q is negative", human)
	}
	scaled := d.Shift(Decimals(tokenSymbol))
	if !scaled.Equal(scaled.Truncate(0)) {
		return "", fmt.Errorf("amount %q exceeds %d decimals of %s", human, Decimals(tokenSymbol), tokenSymbol)
	}
	return scaled.Truncate(0).BigInt().String(), nil
}

// Sum 累加同一代币的最小单位金额
func Sum(amounts ...string) (*big.Int, error) {
	total := new(big.Int)
	for _, a := range amounts {
		v, err := ParseMinor(a)
		if err != nil {
			return nil, err
		}
		total.Add(total, v)
	}
	return total, nil
}
