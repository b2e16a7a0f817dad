package flag

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	values map[string]bool
	sets   int
	// ignoreWrites simulates a write that silently does not stick.
	ignoreWrites bool
	setErr       error
}

func (m *memRepo) key(name Name, id string) string { return string(name) + "/" + id }

func (m *memRepo) Get(_ context.Context, name Name, id string) (bool, error) {
	v, ok := m.values[m.key(name, id)]
	if !ok {
		return false, ErrNotFound
	}
	return v, nil
}

func (m *memRepo) Set(_ context.Context, name Name, id string, value bool) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if !m.ignoreWrites {
		m.values[m.key(name, id)] = value
	}
	return nil
}

func ptr(b bool) *bool { return &b }

func TestToggle_Flip(t *testing.T) {
	repo := &memRepo{values: map[string]bool{"api-key-active/k1": true}}

	res, err := NewToggler(repo).Toggle(context.Background(), APIKeyActive, "k1", nil)
	require.NoError(t, err)

	assert.True(t, res.Before)
	assert.False(t, res.After)
	assert.True(t, res.Confirmed)
	assert.True(t, res.Changed())
	assert.Equal(t, 1, repo.sets)
}

func TestToggle_ExplicitValueAlreadySet(t *testing.T) {
	repo := &memRepo{values: map[string]bool{"notification-read/n1": true}}

	res, err := NewToggler(repo).Toggle(context.Background(), NotificationRead, "n1", ptr(true))
	require.NoError(t, err)

	assert.False(t, res.Changed())
	assert.True(t, res.Confirmed)
	assert.Zero(t, repo.sets, "no write when value already matches")
}

func TestToggle_NotConfirmed(t *testing.T) {
	repo := &memRepo{values: map[string]bool{"email-notifications/u1": false}, ignoreWrites: true}

	res, err := NewToggler(repo).Toggle(context.Background(), EmailNotifications, "u1", ptr(true))
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.False(t, res.Confirmed)
	assert.False(t, res.After)
}

func TestToggle_Errors(t *testing.T) {
	repo := &memRepo{values: map[string]bool{"api-key-active/k1": true}, setErr: errors.New("permission denied")}
	tg := NewToggler(repo)

	_, err := tg.Toggle(context.Background(), APIKeyActive, "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = tg.Toggle(context.Background(), APIKeyActive, "k1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = tg.Toggle(context.Background(), Name("receipts.deleted"), "r1", nil)
	require.ErrorIs(t, err, ErrUnknownFlag)
}

func TestParse(t *testing.T) {
	n, err := Parse(" API-Key-Active ")
	require.NoError(t, err)
	assert.Equal(t, APIKeyActive, n)

	_, err = Parse("drop table")
	require.ErrorIs(t, err, ErrUnknownFlag)
	assert.Contains(t, err.Error(), "email-notifications")
}

func TestParseValue(t *testing.T) {
	for _, s := range []string{"on", "TRUE", "yes", "1", "enabled"} {
		v, err := ParseValue(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "false", "No", "0", "disable"} {
		v, err := ParseValue(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseValue("maybe")
	require.Error(t, err)
}
