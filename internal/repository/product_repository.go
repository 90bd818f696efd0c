// Package repository contains data access logic for the reservation
// service.  This file covers the product catalog lookups the engine needs:
// sale price, active flag and the variant-group/set memberships used for
// cap resolution.  The wider catalog lives outside this service.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// ProductRepo manages persistence for products.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo constructs a ProductRepo with the given DB handle.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

const productColumns = `id, name, price_cents, is_active, variant_group_id, set_id`

func scanProduct(row interface{ Scan(...any) error }) (model.Product, error) {
	var p model.Product
	var vg, set sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Active, &vg, &set)
	if err != nil {
		return p, err
	}
	if vg.Valid {
		v := uint64(vg.Int64)
		p.VariantGroupID = &v
	}
	if set.Valid {
		s := uint64(set.Int64)
		p.SetID = &s
	}
	return p, nil
}

// GetByID retrieves a product by its ID.  It returns ErrProductNotFound
// if there is no matching row.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByIDs fetches multiple products in one query, keyed by id.  IDs
// that do not resolve are simply absent from the map; callers decide
// whether a missing product is an error.
func (r *ProductRepo) ListByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	out := make(map[uint64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByVariantGroup returns all products belonging to a variant group.
// The auto-increase checker aggregates sold counts across group members.
func (r *ProductRepo) ListByVariantGroup(ctx context.Context, groupID uint64) ([]model.Product, error) {
	return r.list(ctx, `SELECT `+productColumns+` FROM products WHERE variant_group_id = ?`, groupID)
}

// ListBySet returns all products belonging to a set.
func (r *ProductRepo) ListBySet(ctx context.Context, setID uint64) ([]model.Product, error) {
	return r.list(ctx, `SELECT `+productColumns+` FROM products WHERE set_id = ?`, setID)
}

func (r *ProductRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
