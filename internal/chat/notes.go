package chat

import (
	"fmt"
	"strings"
)

// PadNotes are the facilitators' free-text reflections captured next to the
// chat. Each field is stored independently of the conversation.
type PadNotes struct {
	Observations string `json:"observations"`
	Needs        string `json:"needs"`
	Strengths    string `json:"strengths"`
	Gaps         string `json:"gaps"`
	NextSteps    string `json:"next_steps"`
}

// NoteField describes one PadNotes field.
type NoteField struct {
	Key   string
	Label string
}

// NoteFields lists the fields in display order.
var NoteFields = []NoteField{
	{"observations", "Beobachtungen"},
	{"needs", "Bedarfe der Ratsuchenden"},
	{"strengths", "Was gut lief"},
	{"gaps", "Lücken und Risiken"},
	{"next_steps", "Nächste Schritte"},
}

func (n *PadNotes) field(key string) (*string, error) {
	switch key {
	case "observations":
		return &n.Observations, nil
	case "needs":
		return &n.Needs, nil
	case "strengths":
		return &n.Strengths, nil
	case "gaps":
		return &n.Gaps, nil
	case "next_steps":
		return &n.NextSteps, nil
	}
	return nil, fmt.Errorf("unknown note field %q", key)
}

// Get returns the value of the field named key.
func (n PadNotes) Get(key string) (string, error) {
	p, err := n.field(key)
	if err != nil {
		return "", err
	}
	return *p, nil
}

// Markdown renders the notes for export. Empty fields are kept so the
// export always has the same outline.
func (n PadNotes) Markdown() string {
	var b strings.Builder
	b.WriteString("# Workshop-Notizen\n")
	for _, f := range NoteFields {
		v, _ := n.Get(f.Key)
		fmt.Fprintf(&b, "\n## %s\n\n", f.Label)
		if v = strings.TrimSpace(v); v == "" {
			b.WriteString("_(leer)_\n")
		} else {
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}
