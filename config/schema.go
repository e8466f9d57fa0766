package config

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Schema returns the JSON schema data config documents are validated against.
func Schema() string { return schemaJSON }

// validateSchema checks a decoded document and returns every violation as a ConfigError.
func validateSchema(doc map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if res.Valid() {
		return nil
	}
	var errs []error
	seen := make(map[string]bool)
	for _, re := range res.Errors() {
		// oneOf failures also report every branch; keep the summary only.
		if strings.HasPrefix(re.Type(), "invalid_type") && isBranchOfOneOf(res.Errors(), re.Field()) {
			continue
		}
		path, field := splitField(re.Field())
		ce := &ConfigError{Path: path, Field: field, Value: re.Value(), Msg: re.Description()}
		if seen[ce.Error()] {
			continue
		}
		seen[ce.Error()] = true
		errs = append(errs, ce)
	}
	return errors.Join(errs...)
}

func isBranchOfOneOf(all []gojsonschema.ResultError, field string) bool {
	for _, re := range all {
		if re.Type() == "number_one_of" && re.Field() == field {
			return true
		}
	}
	return false
}

var indexSegment = regexp.MustCompile(`\.(\d+)`)

// splitField turns "input_config.1.components.0.type" into
// ("input_config[1].components[0]", "type").
func splitField(f string) (string, string) {
	if f == "(root)" || f == "" {
		return "", ""
	}
	f = indexSegment.ReplaceAllString(f, "[$1]")
	i := strings.LastIndexByte(f, '.')
	if i < 0 {
		if strings.HasSuffix(f, "]") {
			return f, ""
		}
		return "", f
	}
	return f[:i], f[i+1:]
}
