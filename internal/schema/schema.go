// Package schema infers the shape of bundle documents from a historical
// sample and reports documents that drift from it.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/chtzvt/bundleslurp/internal/document"
)

// PathInfo describes every value observed at one path.
type PathInfo struct {
	Kinds    []string `json:"kinds"`
	MaxDepth int      `json:"maxDepth,omitempty"`
}

func (p *PathInfo) allows(kind string) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *PathInfo) addKind(kind string) {
	if p.allows(kind) {
		return
	}
	p.Kinds = append(p.Kinds, kind)
	sort.Strings(p.Kinds)
}

// Schema maps document paths such as transactions.entry[].entry[].resource.name[]
// to the kinds seen there. An unconstrained schema accepts anything.
type Schema struct {
	Documents     int                  `json:"documents"`
	Paths         map[string]*PathInfo `json:"paths"`
	Unconstrained bool                 `json:"unconstrained,omitempty"`
}

// New returns an empty schema ready to observe documents.
func New() *Schema {
	return &Schema{Paths: make(map[string]*PathInfo)}
}

// Unconstrained returns a schema that validates every document.
func Unconstrained() *Schema {
	return &Schema{Paths: map[string]*PathInfo{}, Unconstrained: true}
}

// Issue is a difference between a document and the schema.
type Issue struct {
	Path   string
	Kind   string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Path, i.Reason, i.Kind)
}

// Observe widens the schema with everything found in doc.
func (s *Schema) Observe(doc document.Value) {
	s.Documents++
	walk(doc, "", func(path string, v document.Value) {
		info, ok := s.Paths[path]
		if !ok {
			info = &PathInfo{}
			s.Paths[path] = info
		}
		info.addKind(v.Kind().String())
		if d := arrayDepth(v); d > info.MaxDepth {
			info.MaxDepth = d
		}
	})
}

// Validate reports paths and kinds in doc that the sample never showed. Null
// is accepted anywhere. Issues are informational only.
func (s *Schema) Validate(doc document.Value) []Issue {
	if s == nil || s.Unconstrained {
		return nil
	}
	var issues []Issue
	walk(doc, "", func(path string, v document.Value) {
		kind := v.Kind().String()
		info, ok := s.Paths[path]
		switch {
		case !ok:
			issues = append(issues, Issue{Path: path, Kind: kind, Reason: "unknown path"})
		case v.Kind() == document.Null:
		case !info.allows(kind):
			issues = append(issues, Issue{Path: path, Kind: kind, Reason: "unexpected kind"})
		}
	})
	return issues
}

// MarshalIndent renders the schema for humans.
func (s *Schema) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// walk visits every node below the root, naming array elements with [].
func walk(v document.Value, path string, visit func(string, document.Value)) {
	if path != "" {
		visit(path, v)
	}
	switch v.Kind() {
	case document.Object:
		keys := v.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			walk(v.Get(k), child, visit)
		}
	case document.Array:
		for _, e := range v.Elems() {
			walk(e, path+"[]", visit)
		}
	}
}

// arrayDepth counts directly nested array levels: [1] is 1, [[1]] is 2.
func arrayDepth(v document.Value) int {
	if !v.IsArray() {
		return 0
	}
	max := 0
	for _, e := range v.Elems() {
		if d := arrayDepth(e); d > max {
			max = d
		}
	}
	return max + 1
}
