// Package policy holds the special cases the matcher consults before fuzzy
// search: direct code overrides, post-census region reassignments and
// corrections to the highly urbanized city list.
package policy

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/normalize"
)

// NIRCode is the Negros Island Region code.
const NIRCode = "PH18"

// Entry is one special case, keyed by name and level.
type Entry struct {
	Name  string          `yaml:"name"`
	Level gazetteer.Level `yaml:"level"`
	// Code, when set, is used as the match without fuzzy search.
	Code string `yaml:"code,omitempty"`
	// Region, when set, replaces the matched entity's region.
	Region string `yaml:"region,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

// HUCRules corrects the highly urbanized city list used for detection.
type HUCRules struct {
	Include []gazetteer.HUCEntry `yaml:"include"`
	Exclude []string             `yaml:"exclude"`
}

// File is the YAML layout of a policy file, under a top-level "policy" key.
type File struct {
	Entries []Entry  `yaml:"entries"`
	HUC     HUCRules `yaml:"huc"`
}

type key struct {
	name  string
	level gazetteer.Level
}

// Policy is an immutable lookup table. A nil Policy has no entries.
type Policy struct {
	entries map[key]Entry
	huc     HUCRules
}

// New validates f and builds a Policy.
func New(f File) (*Policy, error) {
	p := &Policy{entries: make(map[key]Entry, len(f.Entries)), huc: f.HUC}
	for i, e := range f.Entries {
		n := normalize.Name(e.Name)
		if n == "" {
			return nil, eris.Errorf("policy: entry %d has no name", i)
		}
		if !e.Level.Valid() || e.Level == gazetteer.LevelCountry {
			return nil, eris.Errorf("policy: entry %q has invalid level %q", e.Name, e.Level)
		}
		if e.Code == "" && e.Region == "" {
			return nil, eris.Errorf("policy: entry %q sets neither code nor region", e.Name)
		}
		k := key{name: n, level: e.Level}
		if _, dup := p.entries[k]; dup {
			return nil, eris.Errorf("policy: duplicate entry for %s %q", e.Level, e.Name)
		}
		p.entries[k] = e
	}
	return p, nil
}

// Default returns the built-in policy: the Negros Island Region provinces
// reassigned from Western and Central Visayas, the City of Manila district
// and the HUC list corrections for Ormoc and Manila.
func Default() *Policy {
	p, err := New(defaultFile())
	if err != nil {
		panic(err)
	}
	return p
}

func defaultFile() File {
	nir := "reassigned to the Negros Island Region"
	return File{
		Entries: []Entry{
			{Name: "Negros Occidental", Level: gazetteer.LevelProvince, Region: NIRCode, Reason: nir},
			{Name: "Negros Oriental", Level: gazetteer.LevelProvince, Region: NIRCode, Reason: nir},
			{Name: "Siquijor", Level: gazetteer.LevelProvince, Region: NIRCode, Reason: nir},
			// PH1339 is NCR First District in the 9-digit PSGC scheme carried by the
			// HDX COD-AB Philippine boundaries. A reference on the 10-digit PSGC
			// needs a policy file with the new code.
			{Name: "City of Manila", Level: gazetteer.LevelProvince, Code: "PH1339", Reason: "reported as a province; COD-AB (9-digit PSGC) lists it as NCR First District PH1339"},
		},
		HUC: HUCRules{
			Include: []gazetteer.HUCEntry{{First: "Ormoc City", Last: "City of Ormoc"}},
			Exclude: []string{"City of Manila"},
		},
	}
}

// Load reads a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes policy YAML.
func Parse(data []byte) (*Policy, error) {
	var wrapper struct {
		Policy File `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "policy: parse")
	}
	return New(wrapper.Policy)
}

// Marshal encodes p in the layout Parse reads.
func (p *Policy) Marshal() ([]byte, error) {
	wrapper := struct {
		Policy File `yaml:"policy"`
	}{Policy: p.File()}
	out, err := yaml.Marshal(wrapper)
	if err != nil {
		return nil, eris.Wrap(err, "policy: marshal")
	}
	return out, nil
}

// File returns the entries and HUC rules of p.
func (p *Policy) File() File {
	if p == nil {
		return File{}
	}
	f := File{HUC: p.huc}
	for _, e := range p.entries {
		f.Entries = append(f.Entries, e)
	}
	sort.Slice(f.Entries, func(i, j int) bool {
		if f.Entries[i].Level != f.Entries[j].Level {
			return f.Entries[i].Level < f.Entries[j].Level
		}
		return f.Entries[i].Name < f.Entries[j].Name
	})
	return f
}

// Len returns the number of entries.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Lookup returns the entry for an already-normalized name at level.
func (p *Policy) Lookup(name string, level gazetteer.Level) (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	e, ok := p.entries[key{name: name, level: level}]
	return e, ok
}

// ApplyHUC returns a copy of h with the policy's HUC corrections applied.
func (p *Policy) ApplyHUC(h *gazetteer.HUCTable) *gazetteer.HUCTable {
	if p == nil || (len(p.huc.Include) == 0 && len(p.huc.Exclude) == 0) {
		return h
	}
	out := h
	for _, e := range p.huc.Include {
		out = out.Include(e)
	}
	for _, name := range p.huc.Exclude {
		out = out.Exclude(name)
	}
	return out
}
