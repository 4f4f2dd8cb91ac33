// Package repository holds the generic lookups shared by the raw-SQL
// repositories. Writes stay in each domain repository.
package repository

import (
	"context"

	"github.com/smallbiznis/spendwise/pkg/db/option"
	"gorm.io/gorm"
)

// Reader looks up rows of T by the non-zero fields of a condition struct.
type Reader[T any] struct {
	db *gorm.DB
}

func NewReader[T any](db *gorm.DB) Reader[T] {
	return Reader[T]{db: db}
}

func (r Reader[T]) Find(ctx context.Context, where *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	err := r.query(ctx, where, opts...).Find(&rows).Error
	return rows, err
}

// FindOne returns nil without an error when nothing matches, so a missing
// row never reaches the slow/error query log as record-not-found.
func (r Reader[T]) FindOne(ctx context.Context, where *T, opts ...option.QueryOption) (*T, error) {
	rows, err := r.Find(ctx, where, append(opts, option.WithLimit(1))...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r Reader[T]) query(ctx context.Context, where *T, opts ...option.QueryOption) *gorm.DB {
	q := r.db.WithContext(ctx).Where(where)
	for _, opt := range opts {
		q = opt.Apply(q)
	}
	return q
}
