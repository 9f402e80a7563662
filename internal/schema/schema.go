// Package schema reads table descriptions from a YAML or TOML file and
// renders them into the documents stored in the context store.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"gopkg.in/yaml.v3"
)

// File is the on-disk schema description.
type File struct {
	Tables []Table `yaml:"tables" toml:"tables"`
}

// Table describes one relational table. Content, when set, is used verbatim
// and the structured fields are ignored.
type Table struct {
	Name          string   `yaml:"name" toml:"name"`
	Description   string   `yaml:"description" toml:"description"`
	Columns       []Column `yaml:"columns" toml:"columns"`
	Relationships []string `yaml:"relationships" toml:"relationships"`
	Content       string   `yaml:"content" toml:"content"`
}

// Column describes one column, optionally with canonical stored values.
type Column struct {
	Name        string   `yaml:"name" toml:"name"`
	Type        string   `yaml:"type" toml:"type"`
	Description string   `yaml:"description" toml:"description"`
	Examples    []string `yaml:"examples" toml:"examples"`
}

// ErrUnsupportedFormat is returned for schema files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported schema file format")

// Load reads the schema file at path. The format is chosen by extension:
// .yaml/.yml or .toml.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading schema file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML schema description. Unknown keys are rejected.
func ParseYAML(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parsing yaml schema: %w", err)
	}
	return f, f.validate()
}

// ParseTOML decodes a TOML schema description. Unknown keys are rejected.
func ParseTOML(data []byte) (File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return File{}, fmt.Errorf("parsing toml schema: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return File{}, fmt.Errorf("parsing toml schema: unknown key %q", undecoded[0].String())
	}
	return f, f.validate()
}

func (f File) validate() error {
	if len(f.Tables) == 0 {
		return errors.New("schema file declares no tables")
	}
	seen := make(map[string]bool, len(f.Tables))
	for i, t := range f.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("table %q declared twice", t.Name)
		}
		seen[t.Name] = true
		if t.Content == "" && t.Description == "" && len(t.Columns) == 0 {
			return fmt.Errorf("table %q has no description or columns", t.Name)
		}
	}
	return nil
}

// Documents renders every table into a context-store document with id
// "table_<name>", in file order.
func (f File) Documents() []retrieval.Document {
	docs := make([]retrieval.Document, len(f.Tables))
	for i, t := range f.Tables {
		docs[i] = retrieval.Document{ID: "table_" + t.Name, Content: t.Render()}
	}
	return docs
}

// Render returns the free-text description of the table.
func (t Table) Render() string {
	if t.Content != "" {
		return strings.TrimSpace(t.Content)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s.\n", t.Name)
	if t.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(t.Description))
	}
	if len(t.Columns) > 0 {
		b.WriteString("Columns:\n")
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "- %s", c.Name)
			if c.Type != "" {
				fmt.Fprintf(&b, " (%s)", c.Type)
			}
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", strings.TrimSpace(c.Description))
			}
			if len(c.Examples) > 0 {
				quoted := make([]string, len(c.Examples))
				for i, e := range c.Examples {
					quoted[i] = "'" + e + "'"
				}
				fmt.Fprintf(&b, " Values: %s.", strings.Join(quoted, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(t.Relationships) > 0 {
		b.WriteString("Relationships:\n")
		for _, r := range t.Relationships {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r))
		}
	}
	return strings.TrimSpace(b.String())
}
