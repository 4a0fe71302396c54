// Package fixture loads stored integration payloads from disk and
// resolves the HTTP headers each integration expects alongside them.
package fixture

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// Fixture is a parsed fixture file plus its derived format flags. Created
// fresh per invocation and never mutated after parsing.
type Fixture struct {
	// Name is the fixture identifier: the file name without extension.
	Name string
	// FileName is the name the fixture was loaded under, extension included.
	FileName string
	// Body is the raw payload. For JSON fixtures it is the file bytes,
	// for everything else the file text.
	Body []byte
	// JSON is set for .json fixtures.
	JSON bool
	// Multipart is set for .multipart fixtures.
	Multipart bool
	// Fields holds the decoded form fields of a multipart fixture.
	Fields map[string]string
}

// IsEmpty reports whether the fixture carries no payload at all, which is
// the case for integrations that accept no fixture.
func (f *Fixture) IsEmpty() bool {
	return len(f.Body) == 0 && !f.Multipart
}

// BodyString returns the payload as text.
func (f *Fixture) BodyString() string {
	return string(f.Body)
}

// Field extracts a top-level field from a JSON fixture.
func (f *Fixture) Field(path string) (string, bool) {
	if !f.JSON {
		return "", false
	}
	result := gjson.GetBytes(f.Body, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// Load reads and classifies a fixture for an integration. Fixtures live
// under <dir>/<integration>/<fixtureName>; format is decided by extension:
// .json is structured data, .multipart is form-encoded text, anything else
// is plain text. An empty fixtureName yields an empty fixture.
func Load(dir, integration, fixtureName string) (*Fixture, error) {
	if fixtureName == "" {
		return &Fixture{}, nil
	}

	path := filepath.Join(dir, integration, fixtureName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read fixture %s: %w", path, err)
	}

	f := &Fixture{
		Name:     strings.TrimSuffix(fixtureName, filepath.Ext(fixtureName)),
		FileName: fixtureName,
		Body:     data,
	}

	switch filepath.Ext(fixtureName) {
	case ".json":
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("fixture %s is not valid JSON", path)
		}
		f.JSON = true
	case ".multipart":
		fields, err := url.ParseQuery(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("fixture %s is not valid form data: %w", path, err)
		}
		f.Multipart = true
		f.Fields = make(map[string]string, len(fields))
		for k, v := range fields {
			f.Fields[k] = v[0]
		}
	}

	return f, nil
}
