package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-autoresponder-go/internal/models"
)

type fakeStore struct {
	saved    []*models.Settings
	saveErr  error
	received *models.Settings
}

func (s *fakeStore) UpdateSettings(settings *models.Settings) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.received = settings
	s.saved = append(s.saved, settings.Clone())
	return nil
}

type recordingListener struct {
	updates []*models.Settings
}

func (l *recordingListener) OnSettingsUpdate(settings *models.Settings) {
	l.updates = append(l.updates, settings)
}

func baseSettings() *models.Settings {
	return &models.Settings{
		KeywordsEnabled:      true,
		Keywords:             models.StringList{"urgent"},
		ExcludedDomains:      models.StringList{"spam.com"},
		ManualConfirmation:   true,
		ReplyTemplate:        "Thanks, {sender}",
		CheckIntervalSeconds: 10,
	}
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestUpdateNotifiesListenersBeforeReturning(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(baseSettings(), store)

	first := &recordingListener{}
	second := &recordingListener{}
	manager.Subscribe(first)
	manager.Subscribe(second)

	updated, err := manager.Update(&models.SettingsUpdateRequest{
		Keywords:             &[]string{"billing", "refund"},
		CheckIntervalSeconds: intPtr(30),
	})
	require.NoError(t, err)

	// Both listeners observed the new values synchronously.
	require.Len(t, first.updates, 1)
	require.Len(t, second.updates, 1)
	assert.Equal(t, models.StringList{"billing", "refund"}, first.updates[0].Keywords)
	assert.Equal(t, 30, first.updates[0].CheckIntervalSeconds)

	assert.Equal(t, models.StringList{"billing", "refund"}, updated.Keywords)
	assert.Equal(t, models.StringList{"billing", "refund"}, manager.Current().Keywords)
}

func TestUpdatePersistsBeforeSwap(t *testing.T) {
	store := &fakeStore{saveErr: assert.AnError}
	manager := NewManager(baseSettings(), store)

	listener := &recordingListener{}
	manager.Subscribe(listener)

	_, err := manager.Update(&models.SettingsUpdateRequest{CheckIntervalSeconds: intPtr(60)})
	assert.Error(t, err)

	assert.Equal(t, 10, manager.Current().CheckIntervalSeconds)
	assert.Empty(t, listener.updates)
}

func TestUpdateRejectsNonPositiveInterval(t *testing.T) {
	store := &fakeStore{}
	manager := NewManager(baseSettings(), store)

	listener := &recordingListener{}
	manager.Subscribe(listener)

	_, err := manager.Update(&models.SettingsUpdateRequest{CheckIntervalSeconds: intPtr(0)})
	require.Error(t, err)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	// Rejected updates leave the snapshot untouched and fire no notification.
	assert.Equal(t, 10, manager.Current().CheckIntervalSeconds)
	assert.Empty(t, listener.updates)
	assert.Empty(t, store.saved)
}

func TestUpdateRejectsBlankKeywords(t *testing.T) {
	manager := NewManager(baseSettings(), &fakeStore{})

	_, err := manager.Update(&models.SettingsUpdateRequest{Keywords: &[]string{"urgent", "  "}})
	assert.Error(t, err)
}

func TestPartialUpdateLeavesOtherFieldsUnchanged(t *testing.T) {
	manager := NewManager(baseSettings(), &fakeStore{})

	updated, err := manager.Update(&models.SettingsUpdateRequest{
		ManualConfirmation: boolPtr(false),
	})
	require.NoError(t, err)

	assert.False(t, updated.ManualConfirmation)
	assert.True(t, updated.KeywordsEnabled)
	assert.Equal(t, models.StringList{"urgent"}, updated.Keywords)
	assert.Equal(t, "Thanks, {sender}", updated.ReplyTemplate)
	assert.Equal(t, 10, updated.CheckIntervalSeconds)
}

func TestCurrentReturnsACopy(t *testing.T) {
	manager := NewManager(baseSettings(), &fakeStore{})

	snapshot := manager.Current()
	snapshot.Keywords[0] = "mutated"
	snapshot.CheckIntervalSeconds = 999

	assert.Equal(t, models.StringList{"urgent"}, manager.Current().Keywords)
	assert.Equal(t, 10, manager.Current().CheckIntervalSeconds)
}

func TestUpdateTemplate(t *testing.T) {
	manager := NewManager(baseSettings(), &fakeStore{})

	updated, err := manager.Update(&models.SettingsUpdateRequest{
		ReplyTemplate: strPtr("Hello {sender}, we got {subject}"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello {sender}, we got {subject}", updated.ReplyTemplate)
}
