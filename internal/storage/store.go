// Package storage is the device-storage layer: opaque JSON blobs under well
// known keys, with typed change events replacing browser storage listeners.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("storage: key not found")

// Well known keys.
const (
	KeyUserNotifications = "user_notifications"
	KeySiteSettings      = "admin_site_settings"
	KeyLanguage          = "language"
	KeyVerificationCode  = "verification_code_"
	KeyAuthToken         = "sb-auth-token"
)

type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Change is emitted for every write that goes through a Store.
type Change struct {
	Key string `json:"key"`
	Op  Op     `json:"op"`
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Watch calls fn for every change to a key starting with prefix until
	// the returned cancel func is called.
	Watch(prefix string, fn func(Change)) (cancel func())
}

// Scoped joins a key and the scope (user id, browser session id) it belongs to.
func Scoped(key, scope string) string {
	return key + ":" + scope
}

// GetJSON decodes the value under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

type watcher struct {
	prefix string
	fn     func(Change)
}

// watchers fans change events out to registered listeners. Listeners run
// outside the lock so they may call back into the store.
type watchers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]watcher
}

func (w *watchers) add(prefix string, fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[int]watcher)
	}
	id := w.next
	w.next++
	w.fns[id] = watcher{prefix: prefix, fn: fn}

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, id)
	}
}

func (w *watchers) notify(c Change) {
	w.mu.RLock()
	matched := make([]func(Change), 0, len(w.fns))
	for _, wt := range w.fns {
		if strings.HasPrefix(c.Key, wt.prefix) {
			matched = append(matched, wt.fn)
		}
	}
	w.mu.RUnlock()

	for _, fn := range matched {
		fn(c)
	}
}
