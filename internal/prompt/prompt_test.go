package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-chat/internal/buttons"
)

func TestDefault(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "QueerHafen Kollektiv", p.Organization.Name)
	assert.Len(t, p.Organization.Units, 10)
	assert.Equal(t, "gpt-4o-mini", p.Style.Model)
	assert.InDelta(t, 0.4, p.Style.Temperature, 0.0001)
	assert.Equal(t, 500, p.Style.MaxTokens)

	assert.Contains(t, p.System, `"QueerHafen Kollektiv"`)
	assert.Contains(t, p.System, "- Clearing-Stelle | Erstkontakt")
	assert.Contains(t, p.System, "E-Mail: clearing@queerhafen.org | Tel: +49 30 1234 555")
	assert.Contains(t, p.System, buttons.Marker)
	assert.NotContains(t, p.System, "{{")

	for _, section := range []string{
		"Notruf 112",
		"Struktur der Bot-Antwort",
		"Antizipiere nächste Fragen",
		"Spezielle Buttons",
		"Neues Anliegen | Passende Stelle finden",
		"WhatsApp-Feeling",
	} {
		assert.Contains(t, p.System, section)
	}

	require.Len(t, p.Buttons.Rules, 2)
	assert.Equal(t, "contact", p.Buttons.Rules[0].Name)
	assert.Equal(t, "clearing", p.Buttons.Rules[1].Name)
	assert.Equal(t, []string{"Weitere Infos?", "Passende Stelle raussuchen?"}, p.Buttons.Fallback)
}

func TestParse_DefaultsStyle(t *testing.T) {
	p, err := Parse([]byte(`
system: "Hallo {{ .Organization.Name }}"
organization: {name: Test}
buttons:
  fallback: [a, b]
`))
	require.NoError(t, err)
	assert.Equal(t, "Hallo Test", p.System)
	assert.Equal(t, DefaultTemperature, p.Style.Temperature)
	assert.Equal(t, 500, p.Style.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", p.Style.Model)
}

func TestParse_MalformedYAMLError(t *testing.T) {
	_, err := Parse([]byte("system: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse prompt definition: ")
	assert.NotContains(t, err.Error(), "definitioninition")
}

func TestParse_ZeroTemperatureKept(t *testing.T) {
	p, err := Parse([]byte("system: x\nstyle: {temperature: 0}\nbuttons: {fallback: [a, b]}\n"))
	require.NoError(t, err)
	assert.Zero(t, p.Style.Temperature)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty system", "system: ''\nbuttons: {fallback: [a, b]}"},
		{"one fallback", "system: x\nbuttons: {fallback: [a]}"},
		{"blank fallback", "system: x\nbuttons: {fallback: [a, ' ']}"},
		{"rule without keywords", "system: x\nbuttons: {fallback: [a, b], rules: [{name: r, options: [c, d]}]}"},
		{"rule with three options", "system: x\nbuttons: {fallback: [a, b], rules: [{name: r, keywords: [k], options: [c, d, e]}]}"},
		{"bad template", "system: '{{ .Nope }'\nbuttons: {fallback: [a, b]}"},
		{"unknown field", "system: '{{ .Nope }}'\nbuttons: {fallback: [a, b]}"},
		{"not yaml", "system: [unterminated"},
		{"negative temperature", "system: x\nstyle: {temperature: -0.1}\nbuttons: {fallback: [a, b]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system: hi\nstyle: {model: m, temperature: 0.9, max_tokens: 10}\nbuttons: {fallback: [a, b]}\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "m", p.Style.Model)
	assert.Equal(t, 10, p.Style.MaxTokens)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithModel(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Same(t, p, p.WithModel(" "))
	q := p.WithModel("gpt-4.1-mini")
	assert.Equal(t, "gpt-4.1-mini", q.Style.Model)
	assert.Equal(t, "gpt-4o-mini", p.Style.Model)
}
