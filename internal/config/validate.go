package config

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// ValidateSettings validates raw settings, as returned by viper.AllSettings,
// against the embedded JSON schema.
func ValidateSettings(settings map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(settings))
	if err != nil {
		return fmt.Errorf("validate config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", schemaErr.Field(), schemaErr.Description()))
	}
	slices.Sort(errs)

	return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
}
