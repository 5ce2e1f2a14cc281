package callprovider

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/sanitize"

	"gopkg.in/yaml.v3"
)

//go:embed default_scripts.yaml
var defaultScripts []byte

// Scripts renders the text spoken on calls and sent by SMS.
type Scripts struct {
	templates map[ports.CallScript]*template.Template
}

// LoadScripts parses the embedded defaults and then overrides them with the
// entries found in path, when path is set.
func LoadScripts(path string) (*Scripts, error) {
	s := &Scripts{templates: make(map[ports.CallScript]*template.Template)}
	if err := s.merge(defaultScripts); err != nil {
		return nil, fmt.Errorf("default call scripts: %w", err)
	}

	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read call scripts: %w", err)
	}
	if err := s.merge(data); err != nil {
		return nil, fmt.Errorf("call scripts %s: %w", path, err)
	}
	return s, nil
}

func (s *Scripts) merge(data []byte) error {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, text := range raw {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("script %s: %w", name, err)
		}
		s.templates[ports.CallScript(name)] = tmpl
	}
	return nil
}

// Render fills the named script with vars. Values are reduced to plain text
// first since directory fields are free-form.
func (s *Scripts) Render(script ports.CallScript, vars map[string]string) (string, error) {
	tmpl, ok := s.templates[script]
	if !ok {
		return "", fmt.Errorf("unknown call script %q", script)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sanitize.Vars(vars)); err != nil {
		return "", fmt.Errorf("render %s: %w", script, err)
	}
	return buf.String(), nil
}
