package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddProduct inserts a catalog item and returns its id.
func (s *Store) AddProduct(ctx context.Context, p Product) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products(file_id, file_type, caption, category, subcategory, created_at)
		 VALUES(?,?,?,?,?,?)`,
		nullStr(p.FileID), nullStr(p.FileType), nullStr(p.Caption),
		nullStr(p.Category), nullStr(p.Subcategory), toMillis(p.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("add product: %w", err)
	}
	return res.LastInsertId()
}

// Product returns the catalog item, or nil when it was deleted.
func (s *Store) Product(ctx context.Context, id int64) (*Product, error) {
	var (
		p                                      Product
		fileID, fileType, caption, cat, subcat sql.NullString
		created                                int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_id, file_type, caption, category, subcategory, created_at
		 FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &fileID, &fileType, &caption, &cat, &subcat, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", id, err)
	}
	p.FileID = fileID.String
	p.FileType = fileType.String
	p.Caption = caption.String
	p.Category = cat.String
	p.Subcategory = subcat.String
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

// SetProductCategory categorizes a product. Fan-out to subscribers is the
// caller's concern.
func (s *Store) SetProductCategory(ctx context.Context, id int64, category, subcategory string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET category = ?, subcategory = ? WHERE id = ?`,
		nullStr(category), nullStr(subcategory), id)
	if err != nil {
		return fmt.Errorf("set category for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("set category: product %d not found", id)
	}
	return nil
}

// DeleteProduct removes a catalog item. Pending notification jobs that
// reference it are left in place; delivery treats the missing product as a
// terminal no-op.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	return nil
}
