package taxonomy

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// ErrInvalidGrammar is returned when a grammar cannot be compiled.
var ErrInvalidGrammar = errors.New("invalid taxonomy grammar")

// valuePlaceholder marks the captured part of a Pattern rule.
const valuePlaceholder = "{value}"

// Rule matches one folder segment.
//
// Exactly one of Literal, Pattern or Regex may be set. A rule with none of
// them captures the whole segment. Facet is required for capturing rules.
type Rule struct {
	// Literal matches a fixed segment, case-insensitively, without binding a facet.
	Literal string `yaml:"literal,omitempty"`
	// Pattern is a template such as "Lesson - '{value}'".
	Pattern string `yaml:"pattern,omitempty"`
	// Regex is matched against the segment; the first group is the value if present.
	Regex string `yaml:"regex,omitempty"`
	// Facet receives the captured value.
	Facet domain.Facet `yaml:"facet,omitempty"`
	// Optional rules may be skipped without losing full confidence.
	Optional bool `yaml:"optional,omitempty"`
}

// Grammar is an ordered list of segment rules plus the file type table.
type Grammar struct {
	Rules []Rule `yaml:"rules"`
	// FileTypes extends the built-in table, keyed by ".ext" or MIME type.
	FileTypes map[string]FileType `yaml:"file_types,omitempty"`
}

// DefaultGrammar returns the curriculum layout:
// Subjects / <Subject> / <GradeLevel> / Lesson - '<Lesson>' / Part - '<LessonPart>' / <file>
func DefaultGrammar() Grammar {
	return Grammar{
		Rules: []Rule{
			{Literal: "Subjects"},
			{Facet: domain.FacetSubject},
			{Facet: domain.FacetGradeLevel},
			{Pattern: "Lesson - '{value}'", Facet: domain.FacetLesson},
			{Pattern: "Part - '{value}'", Facet: domain.FacetLessonPart},
		},
	}
}

// LoadGrammar decodes a YAML grammar.
func LoadGrammar(r io.Reader) (Grammar, error) {
	var g Grammar
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return Grammar{}, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
	}
	if len(g.Rules) == 0 {
		return Grammar{}, fmt.Errorf("%w: no rules", ErrInvalidGrammar)
	}
	return g, nil
}

// compiledRule is a Rule ready for matching.
type compiledRule struct {
	literal  string
	re       *regexp.Regexp
	facet    domain.Facet
	optional bool
}

// match returns the bound value and whether the segment matched.
func (r compiledRule) match(segment string) (string, bool) {
	switch {
	case r.literal != "":
		return "", strings.EqualFold(segment, r.literal)
	case r.re != nil:
		m := r.re.FindStringSubmatch(segment)
		if m == nil {
			return "", false
		}
		value := m[0]
		if len(m) > 1 {
			value = m[1]
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	default:
		return segment, segment != ""
	}
}

func compileRule(i int, r Rule) (compiledRule, error) {
	set := 0
	for _, s := range []string{r.Literal, r.Pattern, r.Regex} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return compiledRule{}, fmt.Errorf("%w: rule %d sets more than one matcher", ErrInvalidGrammar, i)
	}
	if r.Literal == "" && r.Facet == "" {
		return compiledRule{}, fmt.Errorf("%w: rule %d captures without a facet", ErrInvalidGrammar, i)
	}

	c := compiledRule{literal: r.Literal, facet: r.Facet, optional: r.Optional}
	switch {
	case r.Pattern != "":
		before, after, ok := strings.Cut(r.Pattern, valuePlaceholder)
		if !ok {
			return compiledRule{}, fmt.Errorf("%w: rule %d pattern lacks %s", ErrInvalidGrammar, i, valuePlaceholder)
		}
		c.re = regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(before) + `(.+)` + regexp.QuoteMeta(after) + `$`)
	case r.Regex != "":
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: rule %d: %v", ErrInvalidGrammar, i, err)
		}
		c.re = re
	}
	return c, nil
}
