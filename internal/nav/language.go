package nav

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/vindennt/outfred-gateway/internal/storage"
)

const (
	Arabic  = "ar"
	English = "en"
)

var matcher = language.NewMatcher([]language.Tag{language.Arabic, language.English})

var matcherCodes = []string{Arabic, English}

// Negotiate picks ar or en from an Accept-Language header. ok is false when
// the header names neither.
func Negotiate(acceptLanguage string) (lang string, ok bool) {
	if acceptLanguage == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return matcherCodes[idx], true
}

func normalize(lang string) (string, bool) {
	switch lang {
	case Arabic, English:
		return lang, true
	}
	return "", false
}

// Languages stores the UI language chosen in each browser session under
// language:<scope>.
type Languages struct {
	store    storage.Store
	fallback string
	logger   *zap.Logger
}

func NewLanguages(store storage.Store, fallback string, logger *zap.Logger) *Languages {
	if _, ok := normalize(fallback); !ok {
		fallback = Arabic
	}
	return &Languages{store: store, fallback: fallback, logger: logger}
}

// Stored returns the saved preference for scope, if any.
func (l *Languages) Stored(ctx context.Context, scope string) (string, bool) {
	if scope == "" {
		return "", false
	}
	raw, err := l.store.Get(ctx, storage.Scoped(storage.KeyLanguage, scope))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("failed to read language", zap.String("scope", scope), zap.Error(err))
		}
		return "", false
	}
	return normalize(string(raw))
}

// Language returns the stored preference or the configured default.
func (l *Languages) Language(ctx context.Context, scope string) string {
	if lang, ok := l.Stored(ctx, scope); ok {
		return lang
	}
	return l.fallback
}

// Resolve prefers the stored choice, then the browser's Accept-Language,
// then the configured default.
func (l *Languages) Resolve(ctx context.Context, scope, acceptLanguage string) string {
	if lang, ok := l.Stored(ctx, scope); ok {
		return lang
	}
	if lang, ok := Negotiate(acceptLanguage); ok {
		return lang
	}
	return l.fallback
}

func (l *Languages) Set(ctx context.Context, scope, lang string) error {
	lang, ok := normalize(lang)
	if !ok {
		return fmt.Errorf("unsupported language %q", lang)
	}
	return l.store.Set(ctx, storage.Scoped(storage.KeyLanguage, scope), []byte(lang), 0)
}

// Toggle flips between ar and en starting from the resolved language and
// returns the new one.
func (l *Languages) Toggle(ctx context.Context, scope, acceptLanguage string) (string, error) {
	next := Arabic
	if l.Resolve(ctx, scope, acceptLanguage) == Arabic {
		next = English
	}
	if err := l.Set(ctx, scope, next); err != nil {
		return "", err
	}
	return next, nil
}
