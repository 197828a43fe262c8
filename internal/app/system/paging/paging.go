// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows returned by list endpoints.
const PageSize = 50

// MaxPageSize caps the limit a client may ask for.
const MaxPageSize = 200

// ParseLimit reads the "limit" query parameter. Missing or invalid values
// give PageSize; values above MaxPageSize are clamped.
func ParseLimit(r *http.Request) int64 {
	s := query.Get(r, "limit")
	if s == "" {
		return PageSize
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return PageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return int64(n)
}

// ParseFlag reads a boolean query parameter. "1", "true", "yes" and "on"
// are true, case-insensitively; anything else is false.
func ParseFlag(r *http.Request, key string) bool {
	switch strings.ToLower(query.Get(r, key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
