package imports

import (
	"strings"

	"kb-bridge/core/conflict"
	"kb-bridge/core/wildcard"

	"gopkg.in/yaml.v3"
)

// CollectionSpec maps foreign collections matching Name into ImportInto.
// Documents narrows the imported ids; empty means every document.
type CollectionSpec struct {
	Name       string   `json:"name" yaml:"name"`
	ImportInto string   `json:"import_into" yaml:"import_into"`
	Documents  []string `json:"documents,omitempty" yaml:"documents,omitempty"`
}

// Filter selects what an import reads. An empty filter imports every
// foreign collection into a local collection of the same name.
type Filter struct {
	Collections []CollectionSpec `json:"collections" yaml:"collections"`
}

type compiledSpec struct {
	spec      CollectionSpec
	name      *wildcard.Pattern
	documents []*wildcard.Pattern
}

// ParseFilter reads a JSON or YAML filter and validates it.
func ParseFilter(data []byte) (Filter, error) {
	var f Filter
	if strings.TrimSpace(string(data)) == "" {
		return f, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return f, conflict.NewInvalidFilter("malformed filter: %v", err)
	}
	return FilterFromValue(raw)
}

// FilterFromValue converts an already decoded filter value, such as the
// "filter" member of a request body.
func FilterFromValue(v any) (Filter, error) {
	var f Filter
	if v == nil {
		return f, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return f, conflict.NewInvalidFilter("filter must be an object, got %T", v)
	}
	for key := range obj {
		if key != "collections" {
			return f, conflict.NewInvalidFilter("unknown filter key %q", key)
		}
	}
	b, err := yaml.Marshal(obj)
	if err != nil {
		return f, conflict.NewInvalidFilter("malformed filter: %v", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, conflict.NewInvalidFilter("malformed filter: %v", err)
	}
	if _, err := f.compile(); err != nil {
		return f, err
	}
	return f, nil
}

// compile validates every spec and compiles its patterns.
func (f Filter) compile() ([]compiledSpec, error) {
	out := make([]compiledSpec, 0, len(f.Collections))
	for i, spec := range f.Collections {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, conflict.NewInvalidFilter("collections[%d]: empty name pattern", i)
		}
		if strings.TrimSpace(spec.ImportInto) == "" {
			return nil, conflict.NewInvalidFilter("collections[%d]: empty import_into", i)
		}
		if wildcard.HasWildcard(spec.ImportInto) {
			return nil, conflict.NewInvalidFilter("collections[%d]: import_into %q must not contain wildcards", i, spec.ImportInto)
		}
		name, err := wildcard.Compile(spec.Name)
		if err != nil {
			return nil, conflict.NewInvalidFilter("collections[%d]: invalid pattern %q: %v", i, spec.Name, err)
		}
		cs := compiledSpec{spec: spec, name: name}
		for j, d := range spec.Documents {
			if d == "" {
				return nil, conflict.NewInvalidFilter("collections[%d].documents[%d]: empty pattern", i, j)
			}
			p, err := wildcard.Compile(d)
			if err != nil {
				return nil, conflict.NewInvalidFilter("collections[%d].documents[%d]: invalid pattern %q: %v", i, j, d, err)
			}
			cs.documents = append(cs.documents, p)
		}
		out = append(out, cs)
	}
	return out, nil
}

// Mapping is one foreign collection routed into one target collection.
type Mapping struct {
	Source string
	Target string

	// documents are the id patterns; nil means every document.
	documents []*wildcard.Pattern
	all       bool
}

// Includes reports whether a document id is selected by the mapping.
func (m Mapping) Includes(id string) bool {
	return m.all || wildcard.MatchAny(m.documents, id)
}

// Expand resolves the filter against the foreign collection names. Specs are
// applied in declaration order. A source mapped into the same target by
// several specs is read once with the union of their document patterns.
func (f Filter) Expand(collections []string) ([]Mapping, error) {
	specs, err := f.compile()
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		out := make([]Mapping, 0, len(collections))
		for _, c := range collections {
			out = append(out, Mapping{Source: c, Target: c, all: true})
		}
		return out, nil
	}

	type key struct{ source, target string }
	index := make(map[key]int)
	var out []Mapping
	for _, cs := range specs {
		for _, name := range cs.name.Filter(collections) {
			k := key{name, cs.spec.ImportInto}
			i, seen := index[k]
			if !seen {
				i = len(out)
				index[k] = i
				out = append(out, Mapping{Source: name, Target: cs.spec.ImportInto})
			}
			if len(cs.documents) == 0 {
				out[i].all = true
			} else {
				out[i].documents = append(out[i].documents, cs.documents...)
			}
		}
	}
	return out, nil
}
