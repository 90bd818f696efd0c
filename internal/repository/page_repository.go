package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// PageRepo manages persistence for exclusive pages.  The reservation
// engine reads pages as configuration; nothing in this service mutates
// them except the auto-increase policy raising section caps.
type PageRepo struct {
	db *sql.DB
}

// NewPageRepo constructs a PageRepo with the given DB handle.
func NewPageRepo(db *sql.DB) *PageRepo {
	return &PageRepo{db: db}
}

// GetByID retrieves an exclusive page by its ID.  It returns
// ErrPageNotFound if there is no matching row.
func (r *PageRepo) GetByID(ctx context.Context, id uint64) (*model.ExclusivePage, error) {
	const q = `SELECT id, slug, title, page_type, is_active FROM exclusive_pages WHERE id = ?`
	var p model.ExclusivePage
	err := r.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Slug, &p.Title, &p.PageType, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetBySlug retrieves an exclusive page by its slug, for the public
// storefront routes.  It returns ErrPageNotFound when no page matches.
func (r *PageRepo) GetBySlug(ctx context.Context, slug string) (*model.ExclusivePage, error) {
	const q = `SELECT id, slug, title, page_type, is_active FROM exclusive_pages WHERE slug = ?`
	var p model.ExclusivePage
	err := r.db.QueryRowContext(ctx, q, slug).Scan(&p.ID, &p.Slug, &p.Title, &p.PageType, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &p, nil
}
