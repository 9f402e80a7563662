package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_YAML(t *testing.T) {
	f, err := Load("testdata/logistics.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	docs := f.Documents()
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].ID != "table_Deliveries" || docs[1].ID != "table_Carriers" {
		t.Errorf("ids = %s, %s", docs[0].ID, docs[1].ID)
	}

	content := docs[0].Content
	for _, want := range []string{
		"Table: Deliveries.",
		"- País (TEXT): Destination country",
		"Values: 'Done', 'Completed', 'Analysis'.",
		"Relationships:\n- Join Carriers",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("document missing %q:\n%s", want, content)
		}
	}

	if !strings.HasPrefix(docs[1].Content, "Table: Carriers.") || strings.HasSuffix(docs[1].Content, "\n") {
		t.Errorf("verbatim content not trimmed: %q", docs[1].Content)
	}
}

func TestLoad_TOML(t *testing.T) {
	f, err := Load("testdata/logistics.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(f.Tables))
	}
	if got := f.Tables[0].Columns[0].Examples; len(got) != 2 || got[1] != "Analysis" {
		t.Errorf("examples = %v", got)
	}
	if f.Documents()[1].Content != "Table: Carriers. Columns: id, carrier_name." {
		t.Errorf("content = %q", f.Documents()[1].Content)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no tables", "tables: []\n"},
		{"missing name", "tables:\n  - description: x\n"},
		{"duplicate", "tables:\n  - name: A\n    description: x\n  - name: A\n    description: y\n"},
		{"empty table", "tables:\n  - name: A\n"},
		{"unknown key", "tables:\n  - name: A\n    description: x\n    colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTOML_UnknownKey(t *testing.T) {
	_, err := ParseTOML([]byte("[[tables]]\nname = \"A\"\ndescription = \"x\"\ncolour = \"red\"\n"))
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}
