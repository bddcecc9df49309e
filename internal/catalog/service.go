package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/pricing"
)

type productStore interface {
	CountProducts(ctx context.Context, filter ProductFilter) (int64, error)
	ListProducts(ctx context.Context, q ListQuery) ([]Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	store        productStore
	cache        *Cache
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        productStore
	Cache        *Cache
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query       string
	Category    string
	ProductType string
	MinPrice    *int64
	MaxPrice    *int64
	Sort        string
	Page        int
	Limit       int
}

// ProductDTO is the public product payload.
type ProductDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description string  `json:"description,omitempty"`
	ProductType string  `json:"productType"`
	Price       int64   `json:"price"`
	SalePrice   *int64  `json:"salePrice,omitempty"`
	Active      bool    `json:"active"`
	CategoryID  *string `json:"categoryId,omitempty"`
}

// CategoryDTO is the public category payload.
type CategoryDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parentId,omitempty"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductDTO
	Total int64
	Page  int
	Limit int
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("type")); v != "" {
		if !pricing.ValidProductType(v) {
			return params, badRequest("type", "unknown product type", nil)
		}
		params.ProductType = v
	}

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	if v := strings.TrimSpace(values.Get("minPrice")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, badRequest("minPrice", "minPrice must be a valid integer", err)
		}
		params.MinPrice = &parsed
	}
	if v := strings.TrimSpace(values.Get("maxPrice")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, badRequest("maxPrice", "maxPrice must be a valid integer", err)
		}
		params.MaxPrice = &parsed
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return params, badRequest("price", "minPrice cannot be greater than maxPrice", fmt.Errorf("invalid price range"))
	}

	params.Sort = normalizeSort(values.Get("sort"))
	return params, nil
}

// ListProducts returns the filtered public product list with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key, shouldUseCache := s.listCacheKey(params)
	if shouldUseCache {
		var cached cachedList
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
		}
	}

	filter := ProductFilter{
		Query:       params.Query,
		Category:    params.Category,
		ProductType: params.ProductType,
		MinPrice:    params.MinPrice,
		MaxPrice:    params.MaxPrice,
		ActiveOnly:  true,
	}
	total, err := s.store.CountProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, err
	}
	offset := (params.Page - 1) * params.Limit
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.ListProducts(ctx, ListQuery{Filter: filter, Sort: params.Sort, Offset: offset, Limit: params.Limit})
	if err != nil {
		return ProductListResult{}, err
	}
	items := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDTO(row))
	}
	result := ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if shouldUseCache {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return result, nil
}

// GetProductDetail returns a single product by slug. Inactive products are
// hidden from the public detail endpoint.
func (s *Service) GetProductDetail(ctx context.Context, slug string) (ProductDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductDTO{}, badRequest("slug", "slug is required", nil)
	}
	cacheKey := detailCacheKey(slug)
	var cached ProductDTO
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductDTO{}, notFound(err)
		}
		return ProductDTO{}, err
	}
	if !product.Active {
		return ProductDTO{}, notFound(ErrNotFound)
	}
	dto := toDTO(product)
	_ = s.cache.SetJSON(ctx, cacheKey, dto)
	return dto, nil
}

// ListCategories returns all categories with parent linkage.
func (s *Service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]CategoryDTO, 0, len(rows))
	for _, row := range rows {
		result = append(result, toCategoryDTO(row))
	}
	return result, nil
}

// Snapshot loads the referenced products and returns a lookup usable by the
// pricing engine. Products missing from the store simply do not resolve.
func (s *Service) Snapshot(ctx context.Context, ids []string) (pricing.LookupFn, error) {
	uniq := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	rows, err := s.store.GetProductsByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]pricing.Product, len(rows))
	for _, row := range rows {
		var sale *pricing.Money
		if row.SalePrice != nil {
			v := pricing.Money(*row.SalePrice)
			sale = &v
		}
		byID[row.ID.String()] = pricing.Product{
			ID:        row.ID.String(),
			Name:      row.Name,
			Price:     pricing.Money(row.Price),
			SalePrice: sale,
			Type:      row.ProductType,
			Active:    row.Active,
		}
	}
	return func(id string) (pricing.Product, bool) {
		p, ok := byID[strings.TrimSpace(id)]
		return p, ok
	}, nil
}

// ProductInput carries admin-provided product fields.
type ProductInput struct {
	Name        string
	Slug        string
	Description string
	ProductType string
	Price       int64
	SalePrice   *int64
	Active      bool
	CategoryID  *string
}

// CreateProduct validates and persists a new product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (ProductDTO, error) {
	p, err := productFromInput(uuid.Nil, in)
	if err != nil {
		return ProductDTO{}, err
	}
	stored, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return ProductDTO{}, err
	}
	s.invalidate(ctx, stored.Slug)
	return toDTO(stored), nil
}

// UpdateProduct validates and rewrites an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (ProductDTO, error) {
	productID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ProductDTO{}, badRequest("id", "invalid product id", err)
	}
	p, err := productFromInput(productID, in)
	if err != nil {
		return ProductDTO{}, err
	}
	previous, err := s.store.GetProductByID(ctx, productID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return ProductDTO{}, err
	}
	stored, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductDTO{}, notFound(err)
		}
		return ProductDTO{}, err
	}
	slugs := []string{stored.Slug}
	if previous.Slug != "" && previous.Slug != stored.Slug {
		slugs = append(slugs, previous.Slug)
	}
	s.invalidate(ctx, slugs...)
	return toDTO(stored), nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	productID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return badRequest("id", "invalid product id", err)
	}
	previous, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(err)
		}
		return err
	}
	if err := s.store.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(err)
		}
		return err
	}
	s.invalidate(ctx, previous.Slug)
	return nil
}

// CategoryInput carries admin-provided category fields.
type CategoryInput struct {
	Name     string
	Slug     string
	ParentID *string
}

// CreateCategory persists a new category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (CategoryDTO, error) {
	c, err := categoryFromInput(uuid.Nil, in)
	if err != nil {
		return CategoryDTO{}, err
	}
	stored, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return CategoryDTO{}, err
	}
	return toCategoryDTO(stored), nil
}

// UpdateCategory rewrites an existing category.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (CategoryDTO, error) {
	categoryID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return CategoryDTO{}, badRequest("id", "invalid category id", err)
	}
	c, err := categoryFromInput(categoryID, in)
	if err != nil {
		return CategoryDTO{}, err
	}
	stored, err := s.store.UpdateCategory(ctx, c)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CategoryDTO{}, notFound(err)
		}
		return CategoryDTO{}, err
	}
	return toCategoryDTO(stored), nil
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	categoryID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return badRequest("id", "invalid category id", err)
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(err)
		}
		return err
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, slugs ...string) {
	keys := []string{listCacheKeyDefault}
	for _, slug := range slugs {
		if strings.TrimSpace(slug) != "" {
			keys = append(keys, detailCacheKey(slug))
		}
	}
	_ = s.cache.Delete(ctx, keys...)
}

func productFromInput(id uuid.UUID, in ProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, badRequest("name", "name is required", nil)
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		return Product{}, badRequest("slug", "slug is required", nil)
	}
	if !pricing.ValidProductType(in.ProductType) {
		return Product{}, badRequest("productType", "unknown product type", nil)
	}
	if in.Price < 0 {
		return Product{}, badRequest("price", "price must not be negative", nil)
	}
	if in.SalePrice != nil && *in.SalePrice < 0 {
		return Product{}, badRequest("salePrice", "salePrice must not be negative", nil)
	}
	p := Product{
		ID:          id,
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		ProductType: in.ProductType,
		Price:       in.Price,
		SalePrice:   in.SalePrice,
		Active:      in.Active,
	}
	if in.CategoryID != nil {
		categoryID, err := uuid.Parse(strings.TrimSpace(*in.CategoryID))
		if err != nil {
			return Product{}, badRequest("categoryId", "invalid category id", err)
		}
		p.CategoryID = &categoryID
	}
	return p, nil
}

func categoryFromInput(id uuid.UUID, in CategoryInput) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, badRequest("name", "name is required", nil)
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		return Category{}, badRequest("slug", "slug is required", nil)
	}
	c := Category{ID: id, Name: name, Slug: slug}
	if in.ParentID != nil {
		parentID, err := uuid.Parse(strings.TrimSpace(*in.ParentID))
		if err != nil {
			return Category{}, badRequest("parentId", "invalid parent id", err)
		}
		c.ParentID = &parentID
	}
	return c, nil
}

func toDTO(p Product) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID.String(),
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		ProductType: p.ProductType,
		Price:       p.Price,
		SalePrice:   p.SalePrice,
		Active:      p.Active,
	}
	if p.CategoryID != nil {
		id := p.CategoryID.String()
		dto.CategoryID = &id
	}
	return dto
}

func toCategoryDTO(c Category) CategoryDTO {
	dto := CategoryDTO{ID: c.ID.String(), Name: c.Name, Slug: c.Slug}
	if c.ParentID != nil {
		id := c.ParentID.String()
		dto.ParentID = &id
	}
	return dto
}

type cachedList struct {
	Items []ProductDTO `json:"items"`
	Total int64        `json:"total"`
}

const listCacheKeyDefault = "catalog:products:list:default"

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if params.Page != s.defaultPage {
		return "", false
	}
	if params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Query != "" || params.Category != "" || params.ProductType != "" || params.MinPrice != nil || params.MaxPrice != nil || params.Sort != "" {
		return "", false
	}
	return listCacheKeyDefault, true
}

func detailCacheKey(slug string) string {
	return "catalog:products:detail:" + slug
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "price:asc", "price:desc", "name:asc", "name:desc":
		return s
	default:
		return ""
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{
		Code:       "NOT_FOUND",
		Message:    "product not found",
		HTTPStatus: http.StatusNotFound,
		Err:        err,
	}
}
