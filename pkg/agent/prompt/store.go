// Package prompt loads, validates, and renders the agent system-prompt
// templates. Templates are embedded at build time and cached after parsing;
// rendering performs no I/O.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/boardroomhq/boardroom/pkg/models"
)

//go:embed templates
var templatesFS embed.FS

// RefineTemplateID names the refinement system prompt.
const RefineTemplateID = "refine"

// Variables is the enumerated substitution set available to templates.
// Industry is optional and may be empty.
type Variables struct {
	BusinessType     string
	Depth            string
	DepthDescription string
	Industry         string
}

// Store holds the parsed templates. Construction parses and warm-renders
// every template so that a reference to an unknown variable fails startup
// instead of a live request.
type Store struct {
	templates map[string]*template.Template
}

// NewStore parses all embedded templates and validates them against the
// variable set. Any parse error or unknown variable reference is returned as
// a startup error.
func NewStore() (*Store, error) {
	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	s := &Store{templates: make(map[string]*template.Template, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".tmpl")
		raw, err := fs.ReadFile(templatesFS, "templates/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		tmpl, err := template.New(id).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", id, err)
		}
		s.templates[id] = tmpl
	}

	if len(s.templates) == 0 {
		return nil, fmt.Errorf("no templates embedded")
	}

	// Warm render: catches references to variables outside the enumerated set.
	probe := Variables{
		BusinessType:     "saas",
		Depth:            string(models.DepthStandard),
		DepthDescription: DepthDescription(models.DepthStandard),
		Industry:         "software",
	}
	for id := range s.templates {
		if _, err := s.Render(id, probe); err != nil {
			return nil, fmt.Errorf("template %s failed validation: %w", id, err)
		}
	}
	return s, nil
}

// Has reports whether a template with the given id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.templates[id]
	return ok
}

// Render substitutes vars into the named template. Unused variables are
// ignored; unknown template ids are an error.
func (s *Store) Render(id string, vars Variables) (string, error) {
	tmpl, ok := s.templates[id]
	if !ok {
		return "", fmt.Errorf("unknown template %q", id)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", id, err)
	}
	return sb.String(), nil
}

// DepthDescription expands a depth into the phrasing templates interpolate.
func DepthDescription(d models.Depth) string {
	switch d {
	case models.DepthFast:
		return "a rapid scan of the most material factors only"
	case models.DepthDeep:
		return "an exhaustive deep-dive with full supporting detail"
	default:
		return "a balanced analysis with moderate depth"
	}
}
