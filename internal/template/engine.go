package template

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// tokenPattern matches {{ name }} with optional inner whitespace
var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Substitute replaces every {{key}} token, matched case-insensitively,
// with the value for key. Tokens with no matching key are kept verbatim.
func Substitute(body string, values map[string]string) string {
	if body == "" || len(values) == 0 {
		return body
	}

	return tokenPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if value, ok := Lookup(values, name); ok {
			return value
		}
		return match
	})
}

// Lookup finds a value by name. An exact key wins; otherwise the
// alphabetically first key equal under case folding is used.
func Lookup(values map[string]string, name string) (string, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}

	var candidates []string
	for k := range values {
		if strings.EqualFold(strings.TrimSpace(k), name) {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return values[candidates[0]], true
}

// Placeholders returns distinct token names in order of first appearance
func Placeholders(body string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, m[1])
	}
	return names
}

// Unresolved returns token names in body that have no value
func Unresolved(body string, values map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(body) {
		if _, ok := Lookup(values, name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// MissingRequired returns required placeholders whose value is absent or blank
func MissingRequired(tmpl *Template, values map[string]string) []string {
	var missing []string
	for _, p := range tmpl.Placeholders {
		if !p.Required {
			continue
		}
		v, _ := Lookup(values, p.Name)
		if strings.TrimSpace(v) == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Engine validates template definitions
type Engine struct {
	validate *validator.Validate
}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return IsValidCategory(Category(fl.Field().String()))
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Engine{validate: v}
}

// Validate checks a template definition before it is stored
func (e *Engine) Validate(tmpl *Template) error {
	if err := e.validate.Struct(tmpl); err != nil {
		return formatValidationError(err)
	}

	if strings.TrimSpace(tmpl.Body) == "" && !tmpl.HasMergeDocument() {
		return fmt.Errorf("body is required unless a merge document is attached")
	}

	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Template.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "category":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a known category", field, fe.Value()))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s must have unique names", field))
		case "excludesall":
			msgs = append(msgs, fmt.Sprintf("%s must not contain braces", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
