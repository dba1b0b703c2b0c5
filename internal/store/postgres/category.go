package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// CategoryDirectory implements core.CategoryDirectory. Directory order is
// (position, id).
type CategoryDirectory struct {
	db DBTX
}

// NewCategoryDirectory creates a category directory.
func NewCategoryDirectory(db DBTX) *CategoryDirectory {
	return &CategoryDirectory{db: db}
}

func categoryByNameQuery(name string, limit int) squirrel.SelectBuilder {
	q := builder().
		Select("id", "name").
		From(categoryTable).
		Where(squirrel.Eq{"name": name}).
		OrderBy("position", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

// FindByName implements core.CategoryDirectory.
func (d *CategoryDirectory) FindByName(ctx context.Context, name string, limit int) ([]core.Category, error) {
	sql, args, err := categoryByNameQuery(name, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var cats []core.Category
	if err := pgxscan.Select(ctx, d.db, &cats, sql, args...); err != nil {
		return nil, fmt.Errorf("find category %q: %w", name, err)
	}
	return cats, nil
}
