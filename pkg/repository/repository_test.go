package repository

import (
	"context"
	"testing"
	"time"

	"kickback-engine/pkg/db/option"
	"kickback-engine/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID        string `gorm:"column:id;primaryKey"`
	Owner     string `gorm:"column:owner"`
	Size      int    `gorm:"column:size"`
	CreatedAt time.Time
}

func TestStoreCRUD(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: "w1", Owner: "a", Size: 1, CreatedAt: base},
		{ID: "w2", Owner: "a", Size: 5, CreatedAt: base.Add(time.Hour)},
		{ID: "w3", Owner: "b", Size: 9, CreatedAt: base.Add(2 * time.Hour)},
	}))

	got, err := repo.FindByID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)

	list, err := repo.Find(ctx, &widget{Owner: "a"}, option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "w2", list[0].ID)

	big, err := repo.Find(ctx, nil, option.WithConditions(option.Condition{Field: "size", Operator: option.GT, Value: 4}))
	require.NoError(t, err)
	require.Len(t, big, 2)

	require.NoError(t, repo.Update(ctx, "w1", map[string]any{"size": 0}))
	w1, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, 0, w1.Size)

	require.ErrorIs(t, repo.Update(ctx, "nope", map[string]any{"size": 3}), gorm.ErrRecordNotFound)

	owned, err := repo.FindOne(ctx, &widget{Owner: "b"})
	require.NoError(t, err)
	require.Equal(t, "w3", owned.ID)
}

func TestFindByIDBlankMatchesNothing(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &widget{ID: "w1", Owner: "a"}))

	got, err := repo.FindByID(ctx, "")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "a", got.Owner)
}

func TestStoreWithTrxRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := repo.WithTrx(tx).Create(ctx, &widget{ID: "w1", Owner: "a"}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	list, err := repo.Find(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, list)
}
