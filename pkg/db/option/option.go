package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	IN   Operator = "IN"
	LIKE Operator = "LIKE"
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

func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

// WithSortBy orders by SortBy (default created_at). Fields outside Allow are
// ignored when Allow is set.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		field := s.SortBy
		if field == "" {
			field = "created_at"
		}
		if s.Allow != nil && !s.Allow[field] {
			return db
		}
		desc := strings.EqualFold(s.OrderBy, "DESC")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc})
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithConditions(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			db = ApplyOperator(db, c)
		}
		return db
	}
}

func ApplyOperator(db *gorm.DB, c Condition) *gorm.DB {
	op := c.Operator
	if op == "" {
		op = EQ
	}
	if op == IN {
		return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
	}
	return db.Where(fmt.Sprintf("%s %s ?", c.Field, op), c.Value)
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// LockingUpdate adds SELECT ... FOR UPDATE. SQLite has no row locks and is
// left untouched.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
