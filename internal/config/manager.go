package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/models"
)

// Listener receives the full settings snapshot synchronously after every
// successful update, in registration order.
type Listener interface {
	OnSettingsUpdate(settings *models.Settings)
}

// SettingsStore persists the settings row.
type SettingsStore interface {
	UpdateSettings(settings *models.Settings) error
}

// ValidationError marks a rejected settings update. The in-memory snapshot is
// left unchanged and no listener is notified.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s %s", e.Field, e.Reason)
}

// Manager owns the live settings snapshot and the hot-reload subscriptions.
type Manager struct {
	mu        sync.RWMutex
	current   *models.Settings
	store     SettingsStore
	listeners []Listener
}

// NewManager creates a settings manager seeded with the given snapshot.
func NewManager(initial *models.Settings, store SettingsStore) *Manager {
	return &Manager{
		current: initial.Clone(),
		store:   store,
	}
}

// Subscribe registers a listener for settings updates. Listeners are notified
// in registration order.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Current returns a copy of the live snapshot.
func (m *Manager) Current() *models.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Update applies a partial update: validate, persist, swap the snapshot, then
// notify every listener before returning. Rejected updates leave the snapshot
// untouched and fire no notification.
func (m *Manager) Update(req *models.SettingsUpdateRequest) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Clone()
	applyUpdate(next, req)

	if err := validateSettings(next); err != nil {
		return nil, err
	}

	if err := m.store.UpdateSettings(next); err != nil {
		return nil, fmt.Errorf("failed to persist settings: %w", err)
	}

	m.current = next
	logrus.WithFields(logrus.Fields{
		"keywords_enabled":    next.KeywordsEnabled,
		"keyword_count":       len(next.Keywords),
		"excluded_domains":    len(next.ExcludedDomains),
		"manual_confirmation": next.ManualConfirmation,
		"check_interval":      next.CheckIntervalSeconds,
	}).Info("Settings updated")

	for _, l := range m.listeners {
		l.OnSettingsUpdate(next.Clone())
	}

	return next.Clone(), nil
}

func applyUpdate(s *models.Settings, req *models.SettingsUpdateRequest) {
	if req.KeywordsEnabled != nil {
		s.KeywordsEnabled = *req.KeywordsEnabled
	}
	if req.Keywords != nil {
		s.Keywords = append(models.StringList{}, *req.Keywords...)
	}
	if req.ExcludedDomains != nil {
		s.ExcludedDomains = append(models.StringList{}, *req.ExcludedDomains...)
	}
	if req.ManualConfirmation != nil {
		s.ManualConfirmation = *req.ManualConfirmation
	}
	if req.ReplyTemplate != nil {
		s.ReplyTemplate = *req.ReplyTemplate
	}
	if req.CheckIntervalSeconds != nil {
		s.CheckIntervalSeconds = *req.CheckIntervalSeconds
	}
}

func validateSettings(s *models.Settings) error {
	if s.CheckIntervalSeconds <= 0 {
		return &ValidationError{Field: "check_interval_seconds", Reason: "must be greater than 0"}
	}
	for _, kw := range s.Keywords {
		if strings.TrimSpace(kw) == "" {
			return &ValidationError{Field: "keywords", Reason: "must not contain blank entries"}
		}
	}
	for _, d := range s.ExcludedDomains {
		if strings.TrimSpace(d) == "" {
			return &ValidationError{Field: "excluded_domains", Reason: "must not contain blank entries"}
		}
	}
	return nil
}
