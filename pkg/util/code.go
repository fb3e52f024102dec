package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeAlphabet 去掉了易混淆字符 0/O/1/I
const CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// RandomString 从 alphabet 中均匀随机取 n 个字符
func RandomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// NewRedeemCode 生成形如 PREFIX-XXXX-XXXX 的兑换码，prefix 为空时省略
func NewRedeemCode(prefix string) (string, error) {
	body, err := RandomString(8, CodeAlphabet)
	if err != nil {
		return "", err
	}
	code := body[:4] + "-" + body[4:]
	if prefix != "" {
		code = prefix + "-" + code
	}
	return code, nil
}

// NewReferralCode 生成 8 位邀请码
func NewReferralCode() (string, error) {
	return RandomString(8, CodeAlphabet)
}

// NormalizeCode 统一兑换码/邀请码的大小写与空白
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
