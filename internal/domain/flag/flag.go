// Package flag toggles boolean columns in the hosted database and confirms
// the write by reading the value back.
//
// Only the flags listed in Known can be toggled. Each one maps to a single
// table/column/key triple owned by the storage layer, so no identifier from
// the command line ever reaches SQL text.
package flag

import (
	"context"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrUnknownFlag is returned for names not in Known.
	ErrUnknownFlag = errors.New("unknown flag")
	// ErrNotFound is returned when the target row does not exist.
	ErrNotFound = errors.New("flag target not found")
	// ErrNotConfirmed is returned when the re-fetched value differs from the
	// written one.
	ErrNotConfirmed = errors.New("flag write not confirmed")
)

// Name identifies a toggleable boolean column.
type Name string

const (
	APIKeyActive       Name = "api-key-active"
	NotificationRead   Name = "notification-read"
	EmailNotifications Name = "email-notifications"
)

// Known describes each supported flag.
var Known = map[Name]string{
	APIKeyActive:       "api_keys.is_active by key id",
	NotificationRead:   "notifications.read by notification id",
	EmailNotifications: "notification_preferences.email_enabled by user id",
}

// Parse validates a flag name.
func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Known[n]; !ok {
		return "", errors.Wrapf(ErrUnknownFlag, "%q (known: %s)", s, strings.Join(Names(), ", "))
	}
	return n, nil
}

// Names returns the sorted list of known flag names.
func Names() []string {
	out := make([]string, 0, len(Known))
	for n := range Known {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}

// ParseValue maps on/off style words to a bool.
func ParseValue(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	default:
		return false, errors.Errorf("invalid flag value %q (want on or off)", s)
	}
}

// Repository reads and writes a single flag value.
type Repository interface {
	Get(ctx context.Context, name Name, id string) (bool, error)
	Set(ctx context.Context, name Name, id string, value bool) error
}

// Result reports a toggle.
type Result struct {
	Name      Name
	ID        string
	Before    bool
	After     bool
	Confirmed bool
}

// Changed reports whether the toggle altered the stored value.
func (r Result) Changed() bool {
	return r.Before != r.After
}

// Toggler flips flags through a Repository.
type Toggler struct {
	repo Repository
}

// NewToggler creates a Toggler backed by repo.
func NewToggler(repo Repository) *Toggler {
	return &Toggler{repo: repo}
}

// Toggle sets the flag to *value, or flips it when value is nil, then
// re-fetches it. A mismatch between written and re-read values yields
// ErrNotConfirmed along with the partially filled Result.
func (t *Toggler) Toggle(ctx context.Context, name Name, id string, value *bool) (Result, error) {
	res := Result{Name: name, ID: id}
	if _, ok := Known[name]; !ok {
		return res, errors.Wrapf(ErrUnknownFlag, "%q", name)
	}

	before, err := t.repo.Get(ctx, name, id)
	if err != nil {
		return res, errors.Wrap(err, "read current value")
	}
	res.Before = before

	want := !before
	if value != nil {
		want = *value
	}

	if want != before {
		if err := t.repo.Set(ctx, name, id, want); err != nil {
			return res, errors.Wrap(err, "write value")
		}
	}

	after, err := t.repo.Get(ctx, name, id)
	if err != nil {
		return res, errors.Wrap(err, "re-fetch value")
	}
	res.After = after
	res.Confirmed = after == want
	if !res.Confirmed {
		return res, ErrNotConfirmed
	}

	return res, nil
}
