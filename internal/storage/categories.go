package storage

import (
	"context"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/log"
)

type CategoryStore struct {
	conn
}

func (s *CategoryStore) Create(ctx context.Context, name, description string) (core.Category, error) {
	c := core.Category{Name: name, Description: description}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	err := s.queryRow(ctx,
		`INSERT INTO categories (name, description) VALUES (?, ?) RETURNING category_id`,
		name, description).Scan(&c.ID)
	if err != nil {
		return core.Category{}, wrapErr("create category", err)
	}

	slog.InfoContext(ctx, "Category created", log.FieldCategoryID, c.ID, "name", name)
	return c, nil
}

func (s *CategoryStore) Get(ctx context.Context, id int64) (core.Category, error) {
	c := core.Category{ID: id}
	err := s.queryRow(ctx,
		`SELECT name, description FROM categories WHERE category_id = ?`, id).Scan(&c.Name, &c.Description)
	if err != nil {
		return core.Category{}, wrapErr("get category", err)
	}
	return c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]core.Category, error) {
	rows, err := s.query(ctx, `SELECT category_id, name, description FROM categories ORDER BY category_id`)
	if err != nil {
		return nil, wrapErr("list categories", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, wrapErr("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list categories", err)
	}
	return categories, nil
}

// Delete removes the category, the rules targeting it, and clears it from
// transactions.
func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM categories WHERE category_id = ?`, id)
	if err := checkAffected("delete category", "category", id, res, err); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category deleted", log.FieldCategoryID, id)
	return nil
}
