package template

import (
	"strings"
	"testing"
)

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		values map[string]string
		want   string
	}{
		{
			name:   "simple",
			body:   "Dear {{name}},",
			values: map[string]string{"name": "Alice"},
			want:   "Dear Alice,",
		},
		{
			name:   "inner whitespace",
			body:   "Dear {{ name }},",
			values: map[string]string{"name": "Alice"},
			want:   "Dear Alice,",
		},
		{
			name:   "case insensitive",
			body:   "Dear {{Name}},",
			values: map[string]string{"name": "Alice"},
			want:   "Dear Alice,",
		},
		{
			name:   "unknown token kept",
			body:   "Hi {{name}}, your code is {{code}}",
			values: map[string]string{"name": "Bob"},
			want:   "Hi Bob, your code is {{code}}",
		},
		{
			name:   "repeated token",
			body:   "{{x}}-{{x}}",
			values: map[string]string{"x": "1"},
			want:   "1-1",
		},
		{
			name:   "no values",
			body:   "Hi {{name}}",
			values: nil,
			want:   "Hi {{name}}",
		},
		{
			name:   "value containing token is not rescanned",
			body:   "{{a}}",
			values: map[string]string{"a": "{{b}}", "b": "nope"},
			want:   "{{b}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.body, tt.values); got != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubstitute_Idempotent(t *testing.T) {
	body := "Dear {{name}}, your role is {{role}} starting {{date}}."
	values := map[string]string{"name": "Alice", "role": "Engineer"}

	once := Substitute(body, values)
	twice := Substitute(once, values)
	if once != twice {
		t.Errorf("Substitute() not idempotent: %q vs %q", once, twice)
	}
}

func TestLookup_ExactKeyWins(t *testing.T) {
	values := map[string]string{"Name": "upper", "name": "lower", "NAME": "caps"}

	if v, _ := Lookup(values, "name"); v != "lower" {
		t.Errorf("Lookup(name) = %q, want lower", v)
	}
	// No exact match: sorted-first folded key is NAME
	if v, _ := Lookup(values, "nAmE"); v != "caps" {
		t.Errorf("Lookup(nAmE) = %q, want caps", v)
	}
	if _, ok := Lookup(values, "other"); ok {
		t.Error("Lookup(other) should not match")
	}
}

func TestPlaceholdersAndUnresolved(t *testing.T) {
	body := "{{name}} {{ Name }} {{role}} {{date}}"

	got := Placeholders(body)
	want := []string{"name", "role", "date"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}

	missing := Unresolved(body, map[string]string{"name": "A", "role": "B"})
	if len(missing) != 1 || missing[0] != "date" {
		t.Errorf("Unresolved() = %v, want [date]", missing)
	}
}

func TestMissingRequired(t *testing.T) {
	tmpl := &Template{
		Placeholders: []Placeholder{
			{Name: "name", Required: true},
			{Name: "email", Required: true},
			{Name: "note"},
		},
	}

	got := MissingRequired(tmpl, map[string]string{"name": "Bob", "email": "  "})
	if len(got) != 1 || got[0] != "email" {
		t.Errorf("MissingRequired() = %v, want [email]", got)
	}
}

func TestEngine_Validate(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name    string
		tmpl    *Template
		wantErr string
	}{
		{
			name: "valid template",
			tmpl: &Template{
				Name:     "offer",
				Category: CategoryOfferLetter,
				Body:     "Dear {{name}}",
				Placeholders: []Placeholder{
					{Name: "name", Required: true},
					{Name: "start", Type: TypeDate},
				},
			},
		},
		{
			name: "merge document without body",
			tmpl: &Template{Name: "merge", FileName: "letter.docx"},
		},
		{
			name:    "missing name",
			tmpl:    &Template{Body: "x"},
			wantErr: "name is required",
		},
		{
			name:    "short name",
			tmpl:    &Template{Name: "a", Body: "x"},
			wantErr: "name must be at least 2 characters",
		},
		{
			name:    "unknown category",
			tmpl:    &Template{Name: "ok", Category: "memo", Body: "x"},
			wantErr: "not a known category",
		},
		{
			name: "bad placeholder type",
			tmpl: &Template{
				Name:         "ok",
				Body:         "x",
				Placeholders: []Placeholder{{Name: "n", Type: "color"}},
			},
			wantErr: "must be one of",
		},
		{
			name: "duplicate placeholder",
			tmpl: &Template{
				Name:         "ok",
				Body:         "x",
				Placeholders: []Placeholder{{Name: "n"}, {Name: "n"}},
			},
			wantErr: "unique names",
		},
		{
			name:    "empty body",
			tmpl:    &Template{Name: "ok"},
			wantErr: "body is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.tmpl)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
