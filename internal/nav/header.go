// Package nav builds the model behind the site header: navigation items for
// the current role, the notification badge, the logo and the language toggle.
package nav

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
)

type Item struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type Header struct {
	Logo              string            `json:"logo"`
	Items             []Item            `json:"items"`
	Badge             string            `json:"badge"`
	ShowNotifications bool              `json:"showNotifications"`
	ShowAdmin         bool              `json:"showAdmin"`
	Language          string            `json:"language"`
	Dir               string            `json:"dir"`
	ToggleLabel       string            `json:"toggleLabel"`
	Labels            map[string]string `json:"labels"`
	User              *models.Identity  `json:"user"`
}

// View is everything the header depends on.
type View struct {
	User        *models.Identity
	IsAdmin     bool
	Development bool
	Language    string
	Unread      int
	Logo        string
	CurrentPage string
}

// Build lays out the header for v. Item order is fixed; role-dependent
// items are left out rather than disabled.
func Build(v View) Header {
	lang, ok := normalize(v.Language)
	if !ok {
		lang = Arabic
	}
	t := labels[lang]

	isMerchant := v.User != nil && v.User.Role == models.RoleMerchant

	items := []Item{
		{Key: "home", Label: t["home"]},
		{Key: "merchants", Label: t["merchants"]},
		{Key: "pricing", Label: t["pricing"]},
	}
	if v.User != nil {
		items = append(items, Item{Key: "account", Label: t["account"]})
	}
	if isMerchant {
		items = append(items, Item{Key: "my-store", Label: t["myStore"]})
	}
	if !isMerchant {
		items = append(items, Item{Key: "join", Label: t["joinAsMerchant"]})
	}
	if v.User != nil && (v.IsAdmin || isMerchant) {
		items = append(items, Item{Key: "import", Label: t["import"]})
	}
	if v.Development || v.IsAdmin {
		items = append(items, Item{Key: "debug", Label: t["debug"]})
	}
	for i := range items {
		items[i].Active = items[i].Key == v.CurrentPage
	}

	h := Header{
		Logo:        v.Logo,
		Items:       items,
		Language:    lang,
		Dir:         "rtl",
		ToggleLabel: "EN",
		User:        v.User,
		Labels: map[string]string{
			"login":         t["login"],
			"register":      t["register"],
			"logout":        t["logout"],
			"adminPanel":    t["adminPanel"],
			"notifications": t["notifications"],
			"menu":          t["menu"],
		},
	}
	if h.Logo == "" {
		h.Logo = DefaultLogo
	}
	if lang == English {
		h.Dir = "ltr"
		h.ToggleLabel = "ع"
	}
	if v.User != nil {
		h.ShowNotifications = true
		h.ShowAdmin = v.IsAdmin
		h.Badge = Badge(v.Unread)
	}
	return h
}

// Badge renders the unread count: nothing for zero, "9+" past nine.
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 9:
		return "9+"
	default:
		return strconv.Itoa(unread)
	}
}

// UnreadCounter is satisfied by notify.Service.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Builder gathers the inputs of a View from the stores.
type Builder struct {
	languages     *Languages
	settings      *SiteSettings
	notifications UnreadCounter
	development   bool
	logger        *zap.Logger
}

func NewBuilder(languages *Languages, settings *SiteSettings, notifications UnreadCounter, development bool, logger *zap.Logger) *Builder {
	return &Builder{
		languages:     languages,
		settings:      settings,
		notifications: notifications,
		development:   development,
		logger:        logger,
	}
}

// Request describes who is asking for the header.
type Request struct {
	Scope          string
	User           *models.Identity
	AcceptLanguage string
	CurrentPage    string
}

func (b *Builder) Header(ctx context.Context, req Request) Header {
	v := View{
		User:        req.User,
		IsAdmin:     req.User != nil && req.User.Role == models.RoleAdmin,
		Development: b.development,
		Language:    b.languages.Resolve(ctx, req.Scope, req.AcceptLanguage),
		Logo:        b.settings.Logo(ctx),
		CurrentPage: req.CurrentPage,
	}

	if req.User != nil {
		n, err := b.notifications.UnreadCount(ctx, req.User.ID)
		if err != nil {
			b.logger.Error("error loading notifications", zap.String("user_id", req.User.ID), zap.Error(err))
		}
		v.Unread = n
	}

	return Build(v)
}
