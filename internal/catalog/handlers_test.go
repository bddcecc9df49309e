package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elitegames/backend-store/internal/catalog"
	"github.com/elitegames/backend-store/internal/pricing"
)

type productsResponse struct {
	Data       []catalog.ProductDTO `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

type productDetailResponse struct {
	Data catalog.ProductDTO `json:"data"`
}

type categoriesResponse struct {
	Data []catalog.CategoryDTO `json:"data"`
}

type fakeStore struct {
	products   []catalog.Product
	categories []catalog.Category
}

func (f *fakeStore) CountProducts(_ context.Context, filter catalog.ProductFilter) (int64, error) {
	return int64(len(f.visible(filter))), nil
}

func (f *fakeStore) ListProducts(_ context.Context, q catalog.ListQuery) ([]catalog.Product, error) {
	rows := f.visible(q.Filter)
	if q.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[q.Offset:]
	if q.Limit < len(rows) {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (f *fakeStore) visible(filter catalog.ProductFilter) []catalog.Product {
	var out []catalog.Product
	for _, p := range f.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.ProductType != "" && p.ProductType != filter.ProductType {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeStore) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeStore) GetProductByID(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeStore) GetProductsByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		for _, p := range f.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	p.ID = uuid.New()
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	for i := range f.products {
		if f.products[i].ID == p.ID {
			f.products[i] = p
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeStore) DeleteProduct(_ context.Context, id uuid.UUID) error {
	for i := range f.products {
		if f.products[i].ID == id {
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return catalog.ErrNotFound
}

func (f *fakeStore) ListCategories(_ context.Context) ([]catalog.Category, error) {
	return f.categories, nil
}

func (f *fakeStore) CreateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	c.ID = uuid.New()
	f.categories = append(f.categories, c)
	return c, nil
}

func (f *fakeStore) UpdateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	for i := range f.categories {
		if f.categories[i].ID == c.ID {
			f.categories[i] = c
			return c, nil
		}
	}
	return catalog.Category{}, catalog.ErrNotFound
}

func (f *fakeStore) DeleteCategory(_ context.Context, id uuid.UUID) error {
	for i := range f.categories {
		if f.categories[i].ID == id {
			f.categories = append(f.categories[:i], f.categories[i+1:]...)
			return nil
		}
	}
	return catalog.ErrNotFound
}

func newFixtureStore() *fakeStore {
	salePrice := int64(1500)
	return &fakeStore{
		products: []catalog.Product{
			{ID: uuid.New(), Name: "Gloomhaven", Slug: "gloomhaven", ProductType: pricing.ProductTypeBoardGame, Price: 13999, Active: true},
			{ID: uuid.New(), Name: "Dice Set", Slug: "dice-set", ProductType: pricing.ProductTypeAccessory, Price: 1999, SalePrice: &salePrice, Active: true},
			{ID: uuid.New(), Name: "Retired Game", Slug: "retired-game", ProductType: pricing.ProductTypeBoardGame, Price: 4999, Active: false},
		},
		categories: []catalog.Category{
			{ID: uuid.New(), Name: "Strategy", Slug: "strategy"},
		},
	}
}

func newTestService(t *testing.T, store *fakeStore) *catalog.Service {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Store:        store,
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)
	return svc
}

func TestCatalogHandlers(t *testing.T) {
	store := newFixtureStore()
	svc := newTestService(t, store)
	handler := catalog.NewHandler(svc)

	t.Run("categories", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
		rec := httptest.NewRecorder()
		handler.Categories(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp categoriesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "strategy", resp.Data[0].Slug)
	})

	t.Run("products list hides inactive rows", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "Gloomhaven", resp.Data[0].Name)
		require.Equal(t, int64(13999), resp.Data[0].Price)
		require.Equal(t, 1, resp.Pagination.Page)
		require.Equal(t, 2, resp.Pagination.TotalItems)
	})

	t.Run("products list filters by type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?type=accessory", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "dice-set", resp.Data[0].Slug)
		require.NotNil(t, resp.Data[0].SalePrice)
		require.Equal(t, int64(1500), *resp.Data[0].SalePrice)
	})

	t.Run("product detail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/gloomhaven", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("slug", "gloomhaven")
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp productDetailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "Gloomhaven", resp.Data.Name)
		require.Equal(t, pricing.ProductTypeBoardGame, resp.Data.ProductType)
	})

	t.Run("inactive product detail is hidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/retired-game", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("slug", "retired-game")
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid pagination", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=0", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSnapshotResolvesPricingProducts(t *testing.T) {
	store := newFixtureStore()
	svc := newTestService(t, store)

	ids := []string{store.products[0].ID.String(), store.products[1].ID.String(), uuid.NewString()}
	lookup, err := svc.Snapshot(context.Background(), ids)
	require.NoError(t, err)

	game, ok := lookup(ids[0])
	require.True(t, ok)
	require.Equal(t, pricing.ProductTypeBoardGame, game.Type)
	require.Equal(t, pricing.Money(13999), game.Price)
	require.Nil(t, game.SalePrice)

	dice, ok := lookup(ids[1])
	require.True(t, ok)
	require.NotNil(t, dice.SalePrice)
	require.Equal(t, pricing.Money(1500), *dice.SalePrice)

	_, ok = lookup(ids[2])
	require.False(t, ok)
}
