package repository

import (
	"context"
	"errors"

	"kickback-engine/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is the transactional store used by services for a single entity.
// FindOne and FindByID return (nil, nil) when nothing matches.
//
// Struct queries skip zero-value fields, so FindOne must not be used for
// primary key lookups: an empty id would match any row. Use FindByID.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	FindByID(ctx context.Context, id string, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	q := option.Apply(s.db.WithContext(ctx).Model(new(T)), opts...)
	if query != nil {
		q = q.Where(query)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	q := option.Apply(s.db.WithContext(ctx).Model(new(T)), opts...)
	if query != nil {
		q = q.Where(query)
	}
	return first[T](q)
}

func (s *store[T]) FindByID(ctx context.Context, id string, opts ...option.QueryOption) (*T, error) {
	if id == "" {
		return nil, nil
	}
	q := option.Apply(s.db.WithContext(ctx).Model(new(T)), opts...)
	return first[T](q.Where("id = ?", id))
}

func first[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

// Update applies resource (a struct or a map of columns) to the row with the
// given primary key. Maps are applied as-is, so zero values are written.
func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	res := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, 100).Error
}
