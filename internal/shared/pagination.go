package shared

import "math"

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NormalizeLimit clamps a requested page size into the supported range.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// NewPagination computes pagination metadata.
func NewPagination(limit, offset, total int) Pagination {
	limit = NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Limit: limit, Offset: offset, Total: total, TotalPages: totalPages}
}
