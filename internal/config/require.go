package config

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrMissingVar matches every *MissingVarError.
var ErrMissingVar = errors.New("missing required variable")

// MissingVarError names an unset required variable and the platform
// fallbacks that were also checked.
type MissingVarError struct {
	Var       string
	Fallbacks []string
}

func (e *MissingVarError) Error() string {
	if len(e.Fallbacks) == 0 {
		return fmt.Sprintf("missing required variable %s", e.Var)
	}
	return fmt.Sprintf("missing required variable %s (or %s)", e.Var, strings.Join(e.Fallbacks, ", "))
}

// Is makes errors.Is(err, ErrMissingVar) hold.
func (e *MissingVarError) Is(target error) bool {
	return target == ErrMissingVar
}

// Setting identifies a required configuration value.
type Setting int

const (
	DatabaseURL Setting = iota
	SupabaseURL
	ServiceKey
	AnonKey
	APIKey
	APIBaseURL
	APIKeyPepper
)

type settingSpec struct {
	env       string
	fallbacks []string
	get       func(*Config) string
}

var settings = map[Setting]settingSpec{
	DatabaseURL: {
		env:       EnvPrefix + "_DATABASE_URL",
		fallbacks: []string{"DATABASE_URL", "SUPABASE_DB_URL"},
		get:       func(c *Config) string { return c.DatabaseURL },
	},
	SupabaseURL: {
		env:       EnvPrefix + "_SUPABASE_URL",
		fallbacks: []string{"SUPABASE_URL", "VITE_SUPABASE_URL"},
		get:       func(c *Config) string { return c.Supabase.URL },
	},
	ServiceKey: {
		env:       EnvPrefix + "_SUPABASE_SERVICE_KEY",
		fallbacks: []string{"SUPABASE_SERVICE_ROLE_KEY"},
		get:       func(c *Config) string { return c.Supabase.ServiceKey },
	},
	AnonKey: {
		env:       EnvPrefix + "_SUPABASE_ANON_KEY",
		fallbacks: []string{"SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"},
		get:       func(c *Config) string { return c.Supabase.AnonKey },
	},
	APIKey: {
		env: EnvPrefix + "_API_KEY",
		get: func(c *Config) string { return c.API.Key },
	},
	APIBaseURL: {
		env:       EnvPrefix + "_API_BASE_URL",
		fallbacks: []string{EnvPrefix + "_SUPABASE_URL", "SUPABASE_URL"},
		get:       func(c *Config) string { return c.API.BaseURL },
	},
	APIKeyPepper: {
		env: EnvPrefix + "_API_KEY_PEPPER",
		get: func(c *Config) string { return c.APIKeyPepper },
	},
}

// Require returns a *MissingVarError for the first setting that is empty.
func (c *Config) Require(required ...Setting) error {
	for _, s := range required {
		spec, ok := settings[s]
		if !ok {
			return errors.Errorf("unknown setting %d", s)
		}
		if strings.TrimSpace(spec.get(c)) == "" {
			return &MissingVarError{Var: spec.env, Fallbacks: spec.fallbacks}
		}
	}
	return nil
}
