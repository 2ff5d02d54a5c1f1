// Package buttons implements the quick-reply block embedded at the end of
// assistant replies:
//
//	Some reply text.
//
//	[Buttons]:
//	- First option
//	- Second option
//
// Guarantee makes sure a reply carries such a block and Parse splits it back
// into display text and options. Nothing else in the module touches the raw
// format.
package buttons

import (
	"regexp"
	"strings"
)

// Marker is the canonical delimiter line written by Guarantee.
const Marker = "[Buttons]:"

var markerRe = regexp.MustCompile(`(?i)\[buttons\]:`)

// Rule maps reply keywords to a pair of quick-reply options.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Options  []string `yaml:"options"`
}

// Policy is the ordered rule list plus the pair used when nothing matches.
type Policy struct {
	Rules    []Rule   `yaml:"rules"`
	Fallback []string `yaml:"fallback"`
}

// FallbackRuleName is reported by Classify when no rule matched.
const FallbackRuleName = "fallback"

// Block is the display form of an assistant reply.
type Block struct {
	MainText string
	Options  []string
}

// HasMarker reports whether text already contains an options block.
func HasMarker(text string) bool {
	return markerRe.MatchString(text)
}

// Classify returns the first rule whose keywords occur in the lowercased
// text, or the fallback rule.
func Classify(text string, p Policy) Rule {
	lower := strings.ToLower(text)
	for _, r := range p.Rules {
		if containsAny(lower, r.Keywords) {
			return r
		}
	}
	return Rule{Name: FallbackRuleName, Options: p.Fallback}
}

// Guarantee returns text unchanged when it already has an options block and
// otherwise appends one chosen by Classify.
func Guarantee(text string, p Policy) string {
	out, _, _ := GuaranteeRule(text, p)
	return out
}

// GuaranteeRule is Guarantee that also reports which rule was applied.
// added is false when the input already carried a block.
func GuaranteeRule(text string, p Policy) (string, Rule, bool) {
	if HasMarker(text) {
		return text, Rule{}, false
	}
	rule := Classify(text, p)
	return Format(text, rule.Options), rule, true
}

// Format renders text followed by an options block.
func Format(text string, options []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\n")
	b.WriteString(Marker)
	for _, o := range options {
		b.WriteString("\n- ")
		b.WriteString(o)
	}
	return b.String()
}

// Parse splits assistant content into main text and options. It never fails;
// content without a marker yields no options.
func Parse(content string) Block {
	loc := markerRe.FindStringIndex(content)
	if loc == nil {
		return Block{MainText: strings.TrimSpace(content)}
	}
	var options []string
	for _, line := range strings.Split(content[loc[1]:], "\n") {
		if opt := stripBullet(line); opt != "" {
			options = append(options, opt)
		}
	}
	return Block{
		MainText: strings.TrimSpace(content[:loc[0]]),
		Options:  options,
	}
}

func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	for _, bullet := range []string{"-", "*", "•"} {
		if strings.HasPrefix(s, bullet) {
			s = strings.TrimSpace(strings.TrimPrefix(s, bullet))
			break
		}
	}
	return s
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
