package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands placeholders in raw configuration bytes.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands $VAR, ${VAR} and ${VAR:-default} from the process environment.
// An unset or empty variable without a default expands to "".
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander returns an expander reading the process environment.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// Expand implements EnvironmentExpander. It never fails.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.Expand(string(input), e.resolve)), nil
}

func (e *OsEnvironmentExpander) resolve(placeholder string) string {
	name, fallback, hasDefault := strings.Cut(placeholder, ":-")
	value, _ := e.lookup(name)
	if value == "" && hasDefault {
		return fallback
	}
	return value
}
