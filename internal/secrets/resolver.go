package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileEnvSuffix is appended to an environment variable name to find a file
// path holding the secret.
const FileEnvSuffix = "_FILE"

// Source kinds reported in metrics and errors.
const (
	SourceValue = "value"
	SourceEnv   = "env"
	SourceFile  = "file"
)

// Common errors for secret resolution.
var (
	// ErrNoSource is returned when a source defines none of value, env or file.
	ErrNoSource = errors.New("must define one of value, env, or file for secret material")

	// ErrMultipleSources is returned when a source defines more than one of value, env or file.
	ErrMultipleSources = errors.New("must not specify multiple secret sources simultaneously")

	// ErrEnvNotDefined is returned when neither NAME nor NAME_FILE is set.
	ErrEnvNotDefined = errors.New("environment variable is not defined")
)

// Source describes where one secret comes from. Exactly one field must be set.
// A pointer to an empty string still counts as set.
type Source struct {
	// Value is inline secret material.
	Value *string `yaml:"value,omitempty" json:"value,omitempty"`

	// Env is the name of an environment variable holding the secret.
	Env *string `yaml:"env,omitempty" json:"env,omitempty"`

	// File is a path to a file holding the secret.
	File *string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Kind returns the configured source kind, or "" when the source is not
// exactly one of value, env or file.
func (s Source) Kind() string {
	if s.count() != 1 {
		return ""
	}
	switch {
	case s.Value != nil:
		return SourceValue
	case s.Env != nil:
		return SourceEnv
	default:
		return SourceFile
	}
}

func (s Source) count() int {
	n := 0
	for _, p := range []*string{s.Value, s.Env, s.File} {
		if p != nil {
			n++
		}
	}
	return n
}

// ConfigError reports a secret source that cannot be resolved.
type ConfigError struct {
	Label string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Resolve returns the plaintext for source. label names the owning entity in
// errors, e.g. "API key k1 secret v2". The returned slice is owned by the
// caller, who should Wipe it after use.
func Resolve(label string, source Source) ([]byte, error) {
	start := time.Now()
	kind := source.Kind()

	plaintext, err := resolve(label, source)
	RecordOperation(kind, time.Since(start), err)
	return plaintext, err
}

func resolve(label string, source Source) ([]byte, error) {
	switch source.count() {
	case 0:
		return nil, &ConfigError{Label: label, Err: ErrNoSource}
	case 1:
	default:
		return nil, &ConfigError{Label: label, Err: ErrMultipleSources}
	}

	switch {
	case source.Value != nil:
		return []byte(*source.Value), nil
	case source.Env != nil:
		value, err := readEnv(*source.Env)
		if err != nil {
			return nil, &ConfigError{Label: label, Err: err}
		}
		return value, nil
	default:
		value, err := ReadFile(*source.File)
		if err != nil {
			return nil, &ConfigError{Label: label, Err: err}
		}
		return value, nil
	}
}

// readEnv reads name directly, falling back to the file named by name_FILE.
func readEnv(name string) ([]byte, error) {
	if direct := os.Getenv(name); direct != "" {
		return []byte(direct), nil
	}

	if path := os.Getenv(name + FileEnvSuffix); path != "" {
		return ReadFile(path)
	}

	return nil, fmt.Errorf("%w: %s", ErrEnvNotDefined, name)
}

// ReadFile reads a secret file and strips a single trailing newline
// ("\n" or "\r\n"). Nothing else is normalised.
func ReadFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secret file path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	return stripTrailingNewline(data), nil
}

func stripTrailingNewline(data []byte) []byte {
	switch {
	case len(data) >= 2 && string(data[len(data)-2:]) == "\r\n":
		return data[:len(data)-2]
	case len(data) >= 1 && data[len(data)-1] == '\n':
		return data[:len(data)-1]
	default:
		return data
	}
}

// Ptr returns a pointer to s. It keeps Source literals short.
func Ptr(s string) *string {
	return &s
}

// Describe returns a log-safe description of the source. It never includes
// the inline value.
func Describe(source Source) string {
	switch source.Kind() {
	case SourceValue:
		return "inline value"
	case SourceEnv:
		return "env " + *source.Env
	case SourceFile:
		return "file " + *source.File
	default:
		return "invalid source"
	}
}
