package nav

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/storage"
)

const DefaultLogo = "/assets/outfred-logo.png"

// SiteSettings reads and writes the admin panel's settings blob.
type SiteSettings struct {
	store  storage.Store
	logger *zap.Logger
}

func NewSiteSettings(store storage.Store, logger *zap.Logger) *SiteSettings {
	return &SiteSettings{store: store, logger: logger}
}

func (s *SiteSettings) Get(ctx context.Context) (models.SiteSettings, error) {
	var settings models.SiteSettings
	err := storage.GetJSON(ctx, s.store, storage.KeySiteSettings, &settings)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SiteSettings{}, nil
	}
	return settings, err
}

func (s *SiteSettings) Update(ctx context.Context, settings models.SiteSettings) error {
	return storage.SetJSON(ctx, s.store, storage.KeySiteSettings, settings, 0)
}

// Logo returns the configured logo URL. Unreadable settings fall back to the
// default logo.
func (s *SiteSettings) Logo(ctx context.Context) string {
	settings, err := s.Get(ctx)
	if err != nil {
		s.logger.Error("error loading logo", zap.Error(err))
		return DefaultLogo
	}
	if settings.SEO.LogoURL == "" {
		return DefaultLogo
	}
	return settings.SEO.LogoURL
}

// WatchLogo calls fn with the current logo whenever the settings change.
func (s *SiteSettings) WatchLogo(fn func(logo string)) (cancel func()) {
	return s.store.Watch(storage.KeySiteSettings, func(storage.Change) {
		fn(s.Logo(context.Background()))
	})
}
