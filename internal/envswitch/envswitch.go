// Package envswitch switches the active environment by promoting one of the
// .env.<name> files in a directory to .env.
package envswitch

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const (
	activeFile = ".env"
	backupFile = ".env.backup"
	envKey     = "MATARESIT_ENV"
)

var (
	// ErrUnknownEnvironment is returned when no .env.<name> file exists.
	ErrUnknownEnvironment = errors.New("unknown environment")
	// ErrIncomplete is returned when an environment file lacks required keys.
	ErrIncomplete = errors.New("environment file incomplete")
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// reserved suffixes are never offered as environments.
var reserved = map[string]bool{"backup": true, "example": true}

// RequiredKeys must be present (with one of the listed alternatives) in an
// environment file before it can be activated.
var RequiredKeys = [][]string{
	{"MATARESIT_SUPABASE_URL", "SUPABASE_URL", "VITE_SUPABASE_URL"},
	{"MATARESIT_SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"},
}

// List returns the environment names available in dir, sorted.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, activeFile+".*"))
	if err != nil {
		return nil, errors.Wrap(err, "glob environment files")
	}

	var names []string
	for _, m := range matches {
		name := strings.TrimPrefix(filepath.Base(m), activeFile+".")
		if reserved[name] || !validName.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Current describes the active .env file.
type Current struct {
	Name string
	// Vars holds every key with secret-looking values masked.
	Vars map[string]string
}

// Show reads the active .env in dir. A missing file yields an empty Current.
func Show(dir string) (Current, error) {
	vars, err := godotenv.Read(filepath.Join(dir, activeFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Current{Vars: map[string]string{}}, nil
		}
		return Current{}, errors.Wrap(err, "read .env")
	}

	masked := make(map[string]string, len(vars))
	for k, v := range vars {
		masked[k] = Mask(k, v)
	}
	return Current{Name: vars[envKey], Vars: masked}, nil
}

// Use makes .env.<name> the active environment. The previous .env, if any,
// is copied to .env.backup first. The written file carries
// MATARESIT_ENV=<name>.
func Use(dir, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !validName.MatchString(name) || reserved[name] {
		return errors.Wrapf(ErrUnknownEnvironment, "%q", name)
	}

	src := filepath.Join(dir, activeFile+"."+name)
	vars, err := godotenv.Read(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(ErrUnknownEnvironment, "%q: %s not found", name, filepath.Base(src))
		}
		return errors.Wrapf(err, "read %s", src)
	}

	if missing := missingKeys(vars); len(missing) > 0 {
		return errors.Wrapf(ErrIncomplete, "%s lacks %s", filepath.Base(src), strings.Join(missing, ", "))
	}

	dst := filepath.Join(dir, activeFile)
	if err := backup(dst, filepath.Join(dir, backupFile)); err != nil {
		return err
	}

	vars[envKey] = name
	if err := godotenv.Write(vars, dst); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	return os.Chmod(dst, 0o600)
}

func missingKeys(vars map[string]string) []string {
	var missing []string
	for _, alternatives := range RequiredKeys {
		found := false
		for _, k := range alternatives {
			if strings.TrimSpace(vars[k]) != "" {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, alternatives[0])
		}
	}
	return missing
}

func backup(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "read %s", src)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	return nil
}

var secretMarkers = []string{"KEY", "SECRET", "TOKEN", "PASSWORD", "PEPPER"}

// Mask hides values of secret-looking keys and credentials embedded in URLs.
func Mask(key, value string) string {
	upper := strings.ToUpper(key)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return maskValue(value)
		}
	}
	if strings.Contains(upper, "DATABASE_URL") || strings.Contains(upper, "DB_URL") {
		return maskURLPassword(value)
	}
	return value
}

func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****" + v[len(v)-4:]
}

var urlPassword = regexp.MustCompile(`(://[^:/@]+:)[^@]+@`)

func maskURLPassword(v string) string {
	return urlPassword.ReplaceAllString(v, "${1}****@")
}
