package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig matches every *ConfigError with errors.Is.
var ErrConfig = errors.New("invalid data config")

// ConfigError reports a configuration shape problem found before any entry is read.
type ConfigError struct {
	// Path is the node position in the tree, e.g. "input_config[1].components[0]".
	Path string
	// Field is the offending key, if any.
	Field string
	// Value is the offending value, echoed in the message when set.
	Value any
	Msg   string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Value != nil {
		fmt.Fprintf(&b, " (got %v)", e.Value)
	}
	return b.String()
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func configErr(path, field string, value any, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

func childPath(parent, key string, i int) string {
	if parent == "" {
		return fmt.Sprintf("%s[%d]", key, i)
	}
	return fmt.Sprintf("%s.%s[%d]", parent, key, i)
}
