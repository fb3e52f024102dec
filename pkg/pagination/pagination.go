package pagination

import "strconv"

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params 分页参数
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// New 规范化分页参数：page < 1 取 1，page_size < 1 取默认值，超过上限截断
func New(page, pageSize int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}
}

// Parse 从查询字符串解析，非法数字按缺省处理
func Parse(page, pageSize string) Params {
	p, _ := strconv.Atoi(page)
	s, _ := strconv.Atoi(pageSize)
	return New(p, s)
}

// Offset SQL OFFSET
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit SQL LIMIT
func (p Params) Limit() int {
	return p.PageSize
}

// Page 分页结果
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPage 组装分页结果，items 为 nil 时返回空切片
func NewPage[T any](items []T, total int64, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if total > 0 && p.PageSize > 0 {
		totalPages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: totalPages,
	}
}
