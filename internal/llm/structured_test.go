package llm

import (
	"errors"
	"testing"
)

const sectionsSchema = `{
  "type": "object",
  "properties": {
    "sections": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "required": ["sections"]
}`

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: `Here it is: {"a":{"b":2}} hope this helps`, want: `{"a":{"b":2}}`},
		{name: "no object", in: "DONE", wantErr: true},
		{name: "reversed braces", in: "} {", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractJSON(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("ExtractJSON(%q) error = %v, want ErrMalformedOutput", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q) returned error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeJSON_ValidatesSchema(t *testing.T) {
	t.Parallel()

	var out struct {
		Sections map[string]string `json:"sections"`
	}
	if err := DecodeJSON(`{"sections":{"zoning":"R-2"}}`, sectionsSchema, &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Sections["zoning"] != "R-2" {
		t.Fatalf("zoning = %q, want %q", out.Sections["zoning"], "R-2")
	}

	err := DecodeJSON(`{"sections":{"zoning":42}}`, sectionsSchema, &out)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("DecodeJSON error = %v, want ErrMalformedOutput", err)
	}

	err = DecodeJSON(`{"other":{}}`, sectionsSchema, &out)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("DecodeJSON error = %v, want ErrMalformedOutput", err)
	}
}

func TestDecodeJSON_BrokenJSON(t *testing.T) {
	t.Parallel()

	var out map[string]any
	err := DecodeJSON(`{"sections": {"a": "b",}}`, "", &out)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("DecodeJSON error = %v, want ErrMalformedOutput", err)
	}
}
