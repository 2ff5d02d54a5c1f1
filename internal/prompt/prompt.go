// Package prompt holds the organization profile, the system instructions
// sent ahead of every conversation, the generation style and the quick-reply
// policy. All of it is data loaded from YAML; the default ships embedded.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"intake-chat/internal/buttons"
)

//go:embed prompts/intake.yaml
var defaultDefinition []byte

type Unit struct {
	Key   string `yaml:"key" json:"key"`
	Title string `yaml:"title" json:"title"`
	Focus string `yaml:"focus" json:"focus"`
	Email string `yaml:"email" json:"email"`
	Phone string `yaml:"phone" json:"phone"`
	Wait  string `yaml:"wait" json:"wait"`
}

type Organization struct {
	Name  string `yaml:"name" json:"name"`
	Units []Unit `yaml:"units" json:"units"`
}

// Style is the generation setup. An omitted temperature means
// DefaultTemperature; an explicit 0 is kept.
type Style struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

const DefaultTemperature float32 = 0.4

type Definition struct {
	Organization Organization   `yaml:"organization"`
	Style        Style          `yaml:"style"`
	Buttons      buttons.Policy `yaml:"buttons"`
	System       string         `yaml:"system"`
}

// Policy is a loaded Definition with the system prompt already rendered.
type Policy struct {
	Organization Organization
	Style        Style
	Buttons      buttons.Policy
	System       string
}

// Default returns the embedded policy.
func Default() (*Policy, error) {
	return Parse(defaultDefinition)
}

// Load reads a policy from path, or the embedded default when path is empty.
func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Policy, error) {
	def := Definition{Style: Style{Temperature: DefaultTemperature}}
	if err := yaml.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("parse prompt definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	system, err := render(def)
	if err != nil {
		return nil, err
	}
	style := def.Style
	if style.MaxTokens <= 0 {
		style.MaxTokens = 500
	}
	if style.Model == "" {
		style.Model = "gpt-4o-mini"
	}
	return &Policy{
		Organization: def.Organization,
		Style:        style,
		Buttons:      def.Buttons,
		System:       system,
	}, nil
}

func (s Definition) validate() error {
	if strings.TrimSpace(s.System) == "" {
		return fmt.Errorf("prompt definition: system instructions are empty")
	}
	if s.Style.Temperature < 0 || s.Style.Temperature > 2 {
		return fmt.Errorf("prompt definition: temperature %.2f outside 0..2", s.Style.Temperature)
	}
	if len(s.Buttons.Fallback) != 2 {
		return fmt.Errorf("prompt definition: fallback needs exactly 2 options, got %d", len(s.Buttons.Fallback))
	}
	if !validOptions(s.Buttons.Fallback) {
		return fmt.Errorf("prompt definition: fallback has a blank or multi-line option")
	}
	for _, r := range s.Buttons.Rules {
		if len(r.Options) != 2 {
			return fmt.Errorf("prompt definition: rule %q needs exactly 2 options, got %d", r.Name, len(r.Options))
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("prompt definition: rule %q has no keywords", r.Name)
		}
		if !validOptions(r.Options) {
			return fmt.Errorf("prompt definition: rule %q has a blank or multi-line option", r.Name)
		}
	}
	return nil
}

// Options are written one per bullet line, so they must be single-line text.
func validOptions(opts []string) bool {
	for _, o := range opts {
		if strings.TrimSpace(o) == "" || strings.Contains(o, "\n") {
			return false
		}
	}
	return true
}

func render(s Definition) (string, error) {
	tmpl, err := template.New("system").Option("missingkey=error").Parse(s.System)
	if err != nil {
		return "", fmt.Errorf("parse system template: %w", err)
	}
	var b strings.Builder
	data := struct {
		Organization Organization
		Marker       string
	}{s.Organization, buttons.Marker}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render system template: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// WithModel returns a copy of p using model, unless model is empty.
func (p *Policy) WithModel(model string) *Policy {
	if strings.TrimSpace(model) == "" {
		return p
	}
	cp := *p
	cp.Style.Model = model
	return &cp
}
