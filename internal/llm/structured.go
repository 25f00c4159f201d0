package llm

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ExtractJSON returns the outermost JSON object embedded in text. Models
// often wrap JSON in prose or code fences; everything outside the first '{'
// and the last '}' is discarded.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no json object in output: %w", ErrMalformedOutput)
	}
	return text[start : end+1], nil
}

// DecodeJSON extracts a JSON object from text, validates it against schema
// (when non-empty) and unmarshals it into v. All failures wrap
// ErrMalformedOutput.
func DecodeJSON(text, schema string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if schema != "" {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(schema),
			gojsonschema.NewStringLoader(raw),
		)
		if err != nil {
			return fmt.Errorf("validate output: %v: %w", err, ErrMalformedOutput)
		}
		if !result.Valid() {
			errs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				errs = append(errs, e.String())
			}
			slices.Sort(errs)
			return fmt.Errorf("output violates schema: %s: %w", strings.Join(errs, "; "), ErrMalformedOutput)
		}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode output: %v: %w", err, ErrMalformedOutput)
	}
	return nil
}
