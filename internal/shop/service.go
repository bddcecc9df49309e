package shop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/pricing"
)

const settingsCacheKey = "shop:settings"

type settingsStore interface {
	Get(ctx context.Context) (Settings, error)
	Upsert(ctx context.Context, in Settings) (Settings, error)
}

// Service reads and writes the shop configuration, with a short-lived
// Redis cache in front of the settings row.
type Service struct {
	store    settingsStore
	redis    *redis.Client
	ttl      time.Duration
	defaults Settings
}

// ServiceConfig groups Service dependencies. Defaults seed the settings row
// the first time it is read and the database holds none.
type ServiceConfig struct {
	Store    settingsStore
	Redis    *redis.Client
	CacheTTL time.Duration
	Defaults Settings
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("shop: store is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{store: cfg.Store, redis: cfg.Redis, ttl: ttl, defaults: cfg.Defaults}, nil
}

// Get returns the current shop settings, seeding the row with the
// configured defaults when it does not exist yet.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	if cached, ok := s.getCached(ctx); ok {
		return cached, nil
	}
	settings, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		settings, err = s.store.Upsert(ctx, s.defaults)
	}
	if err != nil {
		return Settings{}, err
	}
	s.setCached(ctx, settings)
	return settings, nil
}

// Update validates and persists new shop settings.
func (s *Service) Update(ctx context.Context, in Settings) (Settings, error) {
	if err := validate(in); err != nil {
		return Settings{}, err
	}
	stored, err := s.store.Upsert(ctx, in)
	if err != nil {
		return Settings{}, err
	}
	s.invalidate(ctx)
	return stored, nil
}

// PricingConfig materialises the settings into the pricing engine config.
func (s *Service) PricingConfig(ctx context.Context) (pricing.Config, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return pricing.Config{}, err
	}
	return pricing.Config{
		FirstBoardGamePrice:      pricing.Money(settings.FirstBoardGamePrice),
		AdditionalBoardGamePrice: pricing.Money(settings.AdditionalBoardGamePrice),
		FreeShippingThreshold:    pricing.Money(settings.FreeShippingThreshold),
		StandardShippingCost:     pricing.Money(settings.StandardShippingCost),
		TaxRateBps:               settings.TaxRateBps,
		Currency:                 settings.Currency,
	}, nil
}

func validate(in Settings) error {
	if in.FirstBoardGamePrice < 0 || in.AdditionalBoardGamePrice < 0 ||
		in.FreeShippingThreshold < 0 || in.StandardShippingCost < 0 {
		return &common.AppError{
			Code:       "VALIDATION_ERROR",
			Message:    "amounts must not be negative",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	if in.TaxRateBps < 0 || in.TaxRateBps > 10000 {
		return &common.AppError{
			Code:       "VALIDATION_ERROR",
			Message:    "tax rate must be between 0 and 10000 basis points",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	if len(strings.TrimSpace(in.Currency)) != 3 {
		return &common.AppError{
			Code:       "VALIDATION_ERROR",
			Message:    "currency must be a 3-letter code",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return nil
}

func (s *Service) getCached(ctx context.Context) (Settings, bool) {
	if s.redis == nil {
		return Settings{}, false
	}
	data, err := s.redis.Get(ctx, settingsCacheKey).Bytes()
	if err != nil {
		return Settings{}, false
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, false
	}
	return out, true
}

func (s *Service) setCached(ctx context.Context, settings Settings) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, settingsCacheKey, data, s.ttl).Err()
}

func (s *Service) invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, settingsCacheKey).Err()
}
