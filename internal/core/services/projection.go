package services

import (
	"github.com/manthysbr/partgraph/internal/core/domain"
)

// Projector copies an allow-list of attributes out of graph records.
// Unknown attributes are dropped.
type Projector struct {
	attrs []string
	// tag, when non-empty, is stored under "type" on every match.
	tag string
}

// NewProjector builds a projector for the given allow-list.
func NewProjector(attrs []string) Projector {
	return Projector{attrs: attrs}
}

// WithType returns a copy that tags each match with type=label.
func (p Projector) WithType(label string) Projector {
	p.tag = label
	return p
}

// Project flattens records into matches. Null or empty bindings are skipped.
// Bindings that share no attribute with the allow-list yield no match unless
// the projector tags its matches.
func (p Projector) Project(records []domain.GraphRecord) []domain.Match {
	var out []domain.Match
	for _, rec := range records {
		for _, b := range rec {
			if len(b.Data) == 0 {
				continue
			}
			m := p.projectOne(b.Data)
			if len(m) == 0 {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

func (p Projector) projectOne(data map[string]any) domain.Match {
	m := make(domain.Match, len(p.attrs)+1)
	for _, attr := range p.attrs {
		if v, ok := data[attr]; ok {
			m[attr] = v
		}
	}
	if p.tag != "" {
		m["type"] = p.tag
	}
	return m
}
