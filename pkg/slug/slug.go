package slug

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"contenthub/pkg/util"
)

const (
	maxRunes = 80
	// maxNumbered 超过后改用随机后缀
	maxNumbered = 50
	fallback    = "item"
)

// Slugify 转小写，保留任意文字的字母和数字，其余连续字符折叠为一个 "-"
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	count := 0
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			pendingDash = true
			continue
		}
		need := 1
		if pendingDash && b.Len() > 0 {
			need = 2
		}
		if count+need > maxRunes {
			break
		}
		if need == 2 {
			b.WriteByte('-')
			count++
		}
		pendingDash = false
		b.WriteRune(r)
		count++
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	// 纯数字会与按 id 查询冲突
	if allDigits(out) {
		out = fallback + "-" + out
		if len(out) > maxRunes {
			out = out[:maxRunes]
		}
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ExistsFunc 判断 slug 是否已被占用
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// EnsureUnique 返回 base 或 base-2、base-3 ...，全部占用时追加随机后缀
func EnsureUnique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	candidate := base
	for n := 2; n <= maxNumbered+1; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}

	for i := 0; i < 5; i++ {
		suffix, err := util.RandomString(6, "0123456789abcdef")
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q", base)
}
