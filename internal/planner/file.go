package planner

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/metalagman/ttdr/internal/model"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML (or JSON) plan file.
func LoadFile(path string) (model.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Plan{}, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan document.
func Parse(data []byte) (model.Plan, error) {
	var out Output
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return model.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := out.Validate(); err != nil {
		return model.Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return out.ToPlan(), nil
}

// WriteYAML encodes plan as YAML.
func WriteYAML(w io.Writer, plan model.Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromPlan(plan)); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}
