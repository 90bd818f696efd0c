package repository

import (
	"context"
	"database/sql"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// SectionRepo manages persistence for page sections.  A section carries
// the sellable cap for a product, a variant group or a set on one
// exclusive page.  The engine loads all sections of a page up front and
// resolves effective caps in memory.
type SectionRepo struct {
	db *sql.DB
}

// NewSectionRepo constructs a SectionRepo with the given DB handle.
func NewSectionRepo(db *sql.DB) *SectionRepo {
	return &SectionRepo{db: db}
}

// ListByPage returns all sections configured on an exclusive page.  When
// the page has no sections it returns an empty slice and nil error.
func (r *SectionRepo) ListByPage(ctx context.Context, pageID uint64) ([]model.Section, error) {
	const q = `SELECT id, exclusive_page_id, kind, product_id, variant_group_id, set_id,
	                  max_quantity, set_max_sets, auto_increase_step
	           FROM page_sections
	           WHERE exclusive_page_id = ?
	           ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Section
	for rows.Next() {
		var s model.Section
		var kind string
		var productID, variantGroupID, setID sql.NullInt64
		var maxQuantity, setMaxSets sql.NullInt64
		if err := rows.Scan(&s.ID, &s.PageID, &kind, &productID, &variantGroupID, &setID,
			&maxQuantity, &setMaxSets, &s.AutoIncreaseStep); err != nil {
			return nil, err
		}
		s.Kind = model.SectionKind(kind)
		if productID.Valid {
			v := uint64(productID.Int64)
			s.ProductID = &v
		}
		if variantGroupID.Valid {
			v := uint64(variantGroupID.Int64)
			s.VariantGroupID = &v
		}
		if setID.Valid {
			v := uint64(setID.Int64)
			s.SetID = &v
		}
		if maxQuantity.Valid {
			v := int(maxQuantity.Int64)
			s.MaxQuantity = &v
		}
		if setMaxSets.Valid {
			v := int(setMaxSets.Int64)
			s.SetMaxSets = &v
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RaiseCap bumps the cap column of a section to the given value.  Only
// the auto-increase policy calls this; a raise never shrinks a cap, so
// the update is guarded with a comparison to stay monotonic even when
// two checks race.
func (r *SectionRepo) RaiseCap(ctx context.Context, sectionID uint64, newCap int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE page_sections
		 SET max_quantity = CASE WHEN kind <> 'set' AND (max_quantity IS NULL OR max_quantity < ?) THEN ? ELSE max_quantity END,
		     set_max_sets = CASE WHEN kind = 'set' AND (set_max_sets IS NULL OR set_max_sets < ?) THEN ? ELSE set_max_sets END
		 WHERE id = ?`,
		newCap, newCap, newCap, newCap, sectionID,
	)
	return err
}
