package option

import (
	"fmt"
	"strings"

	"license-authority/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"

	IsNull Operator = "IS NULL"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// LockingUpdate is a gorm scope that adds SELECT ... FOR UPDATE to every query
// issued through the scoped handle.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// WithSortBy orders by SortBy when it is listed in Allow. An empty SortBy falls
// back to created_at. OrderBy accepts asc/desc in any case.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" {
			column = "created_at"
		} else if s.Allow != nil && !s.Allow[column] {
			return db
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	}
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		case IsNull:
			return db.Where(fmt.Sprintf("%s IS NULL", c.Field))
		}
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

// ApplyPagination limits the result set. One extra row is requested so callers
// can tell whether another page exists.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = pagination.DefaultLimit
		}
		if limit > pagination.MaxLimit {
			limit = pagination.MaxLimit
		}
		return db.Limit(limit + 1)
	}
}
