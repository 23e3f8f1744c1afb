// Package utils provides small helpers for parsing request parameters,
// independent of the archive domain.
package utils

import "strconv"

// Page bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses page and page_size query values into a 1-based page and
// a size within [1, MaxPageSize].
func ClampPage(page, pageSize string) (int, int) {
	p := AtoiDefault(page, DefaultPage)
	if p < 1 {
		p = 1
	}
	s := AtoiDefault(pageSize, DefaultPageSize)
	if s < 1 {
		s = 1
	}
	if s > MaxPageSize {
		s = MaxPageSize
	}
	return p, s
}

// TotalPages is the number of pages needed for total items.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
