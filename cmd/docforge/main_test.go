package main

import (
	"testing"

	"github.com/foxzi/docforge/internal/template"
)

func TestParseData(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "simple",
			pairs: []string{"name=Ana", "start_date=2024-03-01"},
			want:  map[string]string{"name": "Ana", "start_date": "2024-03-01"},
		},
		{
			name:  "value with equals",
			pairs: []string{"formula=a=b"},
			want:  map[string]string{"formula": "a=b"},
		},
		{
			name:  "empty value",
			pairs: []string{"note="},
			want:  map[string]string{"note": ""},
		},
		{name: "missing equals", pairs: []string{"name"}, wantErr: true},
		{name: "empty key", pairs: []string{"=Ana"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseData(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseData() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseData()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParsePlaceholder(t *testing.T) {
	tests := []struct {
		def     string
		want    template.Placeholder
		wantErr bool
	}{
		{def: "name", want: template.Placeholder{Name: "name"}},
		{def: "name::required", want: template.Placeholder{Name: "name", Required: true}},
		{def: "start:date", want: template.Placeholder{Name: "start", Type: template.TypeDate}},
		{def: "email:email:optional", want: template.Placeholder{Name: "email", Type: template.TypeEmail}},
		{def: "", wantErr: true},
		{def: "a:text:maybe", wantErr: true},
		{def: "a:b:c:d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			got, err := parsePlaceholder(tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePlaceholder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parsePlaceholder() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := generateKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 || a == b {
		t.Errorf("generateKey() = %q, %q", a, b)
	}
}
