package persistence

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/carelink/backend/internal/domain/shared"
)

// applyFilter translates a shared.Filter into gorm query clauses.
// Filter keys map to equality predicates on snake_case columns.
func applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	dir := strings.ToLower(filter.OrderDir)
	if dir != "asc" {
		dir = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", orderBy, dir))

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query
}

// applyCountFilter applies only the predicates, skipping order and paging
func applyCountFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}
	return query
}
