package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a product or category does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Product is the persisted product row.
type Product struct {
	ID          uuid.UUID
	CategoryID  *uuid.UUID
	Name        string
	Slug        string
	Description string
	ProductType string
	Price       int64
	SalePrice   *int64
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is the persisted category row.
type Category struct {
	ID       uuid.UUID
	Name     string
	Slug     string
	ParentID *uuid.UUID
}

// ProductFilter captures the filters applied to product listings.
type ProductFilter struct {
	Query       string
	Category    string
	ProductType string
	MinPrice    *int64
	MaxPrice    *int64
	ActiveOnly  bool
}

// ListQuery combines filters with sorting and pagination.
type ListQuery struct {
	Filter ProductFilter
	Sort   string
	Offset int
	Limit  int
}

// Store persists products and categories in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const productColumns = `p.id, p.category_id, p.name, p.slug, p.description, p.product_type, p.price, p.sale_price, p.active, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.ProductType, &p.Price, &p.SalePrice, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func buildProductWhere(filter ProductFilter, args *[]any) string {
	clauses := []string{"1=1"}
	if filter.ActiveOnly {
		clauses = append(clauses, "p.active")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		*args = append(*args, "%"+q+"%")
		clauses = append(clauses, fmt.Sprintf("p.name ILIKE $%d", len(*args)))
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		*args = append(*args, c)
		clauses = append(clauses, fmt.Sprintf("p.category_id IN (SELECT id FROM categories WHERE slug = $%d)", len(*args)))
	}
	if t := strings.TrimSpace(filter.ProductType); t != "" {
		*args = append(*args, t)
		clauses = append(clauses, fmt.Sprintf("p.product_type = $%d", len(*args)))
	}
	if filter.MinPrice != nil {
		*args = append(*args, *filter.MinPrice)
		clauses = append(clauses, fmt.Sprintf("COALESCE(p.sale_price, p.price) >= $%d", len(*args)))
	}
	if filter.MaxPrice != nil {
		*args = append(*args, *filter.MaxPrice)
		clauses = append(clauses, fmt.Sprintf("COALESCE(p.sale_price, p.price) <= $%d", len(*args)))
	}
	return strings.Join(clauses, " AND ")
}

func orderClause(sort string) string {
	switch sort {
	case "price:asc":
		return "COALESCE(p.sale_price, p.price) ASC, p.name ASC"
	case "price:desc":
		return "COALESCE(p.sale_price, p.price) DESC, p.name ASC"
	case "name:asc":
		return "p.name ASC"
	case "name:desc":
		return "p.name DESC"
	default:
		return "p.created_at DESC, p.name ASC"
	}
}

// CountProducts returns the number of products matching the filter.
func (s *Store) CountProducts(ctx context.Context, filter ProductFilter) (int64, error) {
	var args []any
	where := buildProductWhere(filter, &args)
	var total int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products p WHERE "+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// ListProducts returns products matching the query, ordered and paginated.
func (s *Store) ListProducts(ctx context.Context, q ListQuery) ([]Product, error) {
	var args []any
	where := buildProductWhere(q.Filter, &args)
	args = append(args, q.Limit)
	limitPos := len(args)
	args = append(args, q.Offset)
	offsetPos := len(args)

	sql := fmt.Sprintf(
		"SELECT %s FROM products p WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, where, orderClause(q.Sort), limitPos, offsetPos,
	)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProductBySlug fetches a single product by slug.
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products p WHERE p.slug = $1", slug)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product by slug: %w", err)
	}
	return p, nil
}

// GetProductByID fetches a single product by id.
func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (Product, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products p WHERE p.id = $1", id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// GetProductsByIDs fetches every product whose id appears in ids. Missing ids
// are simply absent from the result.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, "SELECT "+productColumns+" FROM products p WHERE p.id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateProduct inserts a product and returns the stored row.
func (s *Store) CreateProduct(ctx context.Context, p Product) (Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (category_id, name, slug, description, product_type, price, sale_price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+strings.ReplaceAll(productColumns, "p.", ""),
		p.CategoryID, p.Name, p.Slug, p.Description, p.ProductType, p.Price, p.SalePrice, p.Active,
	)
	stored, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return stored, nil
}

// UpdateProduct rewrites all mutable product fields.
func (s *Store) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products SET
			category_id = $2, name = $3, slug = $4, description = $5,
			product_type = $6, price = $7, sale_price = $8, active = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING `+strings.ReplaceAll(productColumns, "p.", ""),
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.ProductType, p.Price, p.SalePrice, p.Active,
	)
	stored, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return stored, nil
}

// DeleteProduct removes a product permanently.
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns all categories sorted by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, slug, parent_id FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, c Category) (Category, error) {
	row := s.pool.QueryRow(ctx,
		"INSERT INTO categories (name, slug, parent_id) VALUES ($1, $2, $3) RETURNING id, name, slug, parent_id",
		c.Name, c.Slug, c.ParentID,
	)
	var stored Category
	if err := row.Scan(&stored.ID, &stored.Name, &stored.Slug, &stored.ParentID); err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	return stored, nil
}

// UpdateCategory rewrites category fields.
func (s *Store) UpdateCategory(ctx context.Context, c Category) (Category, error) {
	row := s.pool.QueryRow(ctx,
		"UPDATE categories SET name = $2, slug = $3, parent_id = $4 WHERE id = $1 RETURNING id, name, slug, parent_id",
		c.ID, c.Name, c.Slug, c.ParentID,
	)
	var stored Category
	err := row.Scan(&stored.ID, &stored.Name, &stored.Slug, &stored.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("update category: %w", err)
	}
	return stored, nil
}

// DeleteCategory removes a category. Products keep a NULL category afterwards.
func (s *Store) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
