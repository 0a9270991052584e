package trace2

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Dump serializes the keyed record collection for inspection instead of
// folding it. The format is internal and unstable; do not build on it.
func (s *Session) Dump(w io.Writer) error {
	doc := struct {
		Invocations map[string]*Invocation `yaml:"invocations"`
		Regions     map[string]*Region     `yaml:"regions"`
	}{
		Invocations: s.invocations,
		Regions:     make(map[string]*Region, len(s.regions)),
	}
	for key, r := range s.regions {
		doc.Regions[key.Sid+" "+regionKeyMarker+key.Label] = r
	}

	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(&doc)
}
