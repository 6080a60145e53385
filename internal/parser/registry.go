// Package parser resolves translation file parsers by format name. Parsers
// are external collaborators of the sync core: each one turns raw remote
// files into entries pre-stamped with their content hash.
package parser

import (
	"github.com/openlocale/openlocale/internal/sync"
)

// Registry maps format names to parsers.
type Registry struct {
	parsers map[string]sync.FileParser
}

var _ sync.ParserRegistry = (*Registry)(nil)

func NewRegistry(parsers ...sync.FileParser) *Registry {
	r := &Registry{parsers: make(map[string]sync.FileParser, len(parsers))}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p sync.FileParser) {
	r.parsers[p.Format()] = p
}

func (r *Registry) Get(format string) (sync.FileParser, bool) {
	p, ok := r.parsers[format]
	return p, ok
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.parsers))
	for format := range r.parsers {
		formats = append(formats, format)
	}
	return formats
}
