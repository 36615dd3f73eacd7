// Package notify keeps each user's in-app notification inbox.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/storage"
)

// MaxPerUser caps an inbox; the oldest entries are dropped first.
const MaxPerUser = 100

const TypeWelcome = "welcome"

var ErrNotificationNotFound = errors.New("notification not found")

type Service struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time

	// mu serialises read-modify-write cycles on an inbox within the process
	mu sync.Mutex
}

func NewService(store storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

func Key(userID string) string {
	return storage.Scoped(storage.KeyUserNotifications, userID)
}

// List returns the inbox newest first. A missing inbox is empty.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	var list []models.Notification
	err := storage.GetJSON(ctx, s.store, Key(userID), &list)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.Notification{}, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *Service) Send(ctx context.Context, userID, typ, title, message string) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}

	err := s.update(ctx, userID, func(list []models.Notification) ([]models.Notification, error) {
		list = append([]models.Notification{n}, list...)
		if len(list) > MaxPerUser {
			list = list[:MaxPerUser]
		}
		return list, nil
	})
	if err != nil {
		return models.Notification{}, err
	}

	s.logger.Debug("notification sent", zap.String("user_id", userID), zap.String("type", typ))
	return n, nil
}

// SendWelcome drops the localised welcome message into a new user's inbox.
func (s *Service) SendWelcome(ctx context.Context, userID, name, lang string) error {
	title, message := welcomeText(name, lang)
	_, err := s.Send(ctx, userID, TypeWelcome, title, message)
	return err
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.update(ctx, userID, func(list []models.Notification) ([]models.Notification, error) {
		for i := range list {
			if list[i].ID == id {
				list[i].Read = true
				return list, nil
			}
		}
		return nil, ErrNotificationNotFound
	})
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(list []models.Notification) ([]models.Notification, error) {
		for i := range list {
			list[i].Read = true
		}
		return list, nil
	})
}

// Watch calls fn with the user id whenever an inbox changes.
func (s *Service) Watch(fn func(userID string)) (cancel func()) {
	prefix := storage.KeyUserNotifications + ":"
	return s.store.Watch(prefix, func(c storage.Change) {
		fn(strings.TrimPrefix(c.Key, prefix))
	})
}

func (s *Service) update(ctx context.Context, userID string, fn func([]models.Notification) ([]models.Notification, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	list, err = fn(list)
	if err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, s.store, Key(userID), list, 0); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

func welcomeText(name, lang string) (title, message string) {
	if lang == "en" {
		return "Welcome to Outfred!",
			fmt.Sprintf("Hi %s, your account is ready. Discover stores and start shopping.", name)
	}
	return "مرحباً بك في Outfred!",
		fmt.Sprintf("أهلاً %s، حسابك جاهز. اكتشف المتاجر وابدأ التسوق.", name)
}
