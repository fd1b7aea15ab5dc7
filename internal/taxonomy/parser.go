// Package taxonomy derives facet tags from folder paths.
//
// Parsing is pure: the same path and MIME type always yield the same Result.
// Paths that do not follow the grammar are never an error; they degrade to
// partial or unstructured confidence.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// Result is the outcome of parsing one path.
type Result struct {
	Tags       domain.Tags       `json:"tags"`
	Confidence domain.Confidence `json:"confidence"`
}

// Parser applies a compiled Grammar. Safe for concurrent use.
type Parser struct {
	rules     []compiledRule
	fileTypes FileTypeTable
}

// NewParser compiles a grammar.
func NewParser(g Grammar) (*Parser, error) {
	p := &Parser{
		rules:     make([]compiledRule, 0, len(g.Rules)),
		fileTypes: DefaultFileTypes(),
	}
	for i, r := range g.Rules {
		c, err := compileRule(i, r)
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, c)
	}
	if len(p.rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidGrammar)
	}

	for key, ft := range g.FileTypes {
		key = strings.ToLower(strings.TrimSpace(key))
		if strings.HasPrefix(key, ".") {
			p.fileTypes.Extensions[key] = ft
		} else {
			p.fileTypes.MimeTypes[key] = ft
		}
	}
	return p, nil
}

// NewDefaultParser returns a parser for DefaultGrammar.
func NewDefaultParser() *Parser {
	p, err := NewParser(DefaultGrammar())
	if err != nil {
		panic(err)
	}
	return p
}

// Parse derives tags from the full path of a file, including its name.
//
// The grammar is anchored at the first folder segment matching the first
// rule, so drive roots such as "My Drive" may precede it. Confidence is full
// when every required rule bound and no folder segments remain, partial when
// the anchor matched but the path diverged, and unstructured otherwise.
// fileType is always set.
func (p *Parser) Parse(filePath, mimeType string) Result {
	segments := splitPath(filePath)
	name := ""
	if len(segments) > 0 {
		name = segments[len(segments)-1]
		segments = segments[:len(segments)-1]
	}

	tags := domain.Tags{
		domain.FacetFileType: string(p.fileTypes.Lookup(name, mimeType)),
	}

	start := -1
	for i, seg := range segments {
		if _, ok := p.rules[0].match(seg); ok {
			start = i
			break
		}
	}
	if start < 0 {
		return Result{Tags: tags, Confidence: domain.ConfidenceUnstructured}
	}

	complete := true
	si := start
	for _, rule := range p.rules {
		if si >= len(segments) {
			if !rule.optional {
				complete = false
			}
			continue
		}
		value, ok := rule.match(segments[si])
		if !ok {
			if rule.optional {
				continue
			}
			complete = false
			break
		}
		if rule.facet != "" {
			tags[rule.facet] = value
		}
		si++
	}

	if complete && si == len(segments) {
		return Result{Tags: tags, Confidence: domain.ConfidenceFull}
	}
	return Result{Tags: tags, Confidence: domain.ConfidencePartial}
}

// splitPath breaks a slash-separated path into trimmed, non-empty segments.
func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
