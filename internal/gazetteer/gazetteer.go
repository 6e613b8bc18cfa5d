// Package gazetteer holds the canonical administrative geography (P-codes)
// that extracted report rows are resolved against. A Gazetteer is built once,
// validated, and is read-only afterwards; it is safe for concurrent lookups.
package gazetteer

import (
	"sort"

	"github.com/reliefmap/pcoder/internal/normalize"
)

// Entity is one canonical administrative unit.
type Entity struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Level      Level  `json:"level"`
	ParentCode string `json:"parent_code,omitempty"`
	// IsHUC marks a highly urbanized city: a municipality-level entity that
	// also acts as its own province.
	IsHUC    bool   `json:"is_huc,omitempty"`
	Centroid *Point `json:"centroid,omitempty"`
}

// Point is a WGS84 longitude/latitude pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Candidate is a ranked lookup result.
type Candidate struct {
	Entity     Entity `json:"entity"`
	Normalized string `json:"normalized"`
	Score      int    `json:"score"`
}

type entityKey struct {
	level Level
	code  string
}

// Gazetteer is an immutable index of administrative entities.
type Gazetteer struct {
	entities   []Entity
	normalized []string
	byKey      map[entityKey]int
	byName     map[Level]map[string][]int
	byLevel    map[Level][]int
	children   map[string][]int
	country    int
	similarity Similarity
}

// Option configures a Gazetteer at construction.
type Option func(*Gazetteer)

// WithSimilarity replaces the default LevenshteinRatio similarity.
func WithSimilarity(s Similarity) Option {
	return func(g *Gazetteer) {
		if s != nil {
			g.similarity = s
		}
	}
}

// New validates entities and builds the index. Any structural problem is
// reported as a *MalformedReferenceError.
func New(entities []Entity, opts ...Option) (*Gazetteer, error) {
	g := &Gazetteer{
		entities:   make([]Entity, len(entities)),
		byKey:      make(map[entityKey]int, len(entities)),
		byName:     make(map[Level]map[string][]int),
		byLevel:    make(map[Level][]int),
		children:   make(map[string][]int),
		country:    -1,
		similarity: LevenshteinRatio,
	}
	for _, opt := range opts {
		opt(g)
	}

	copy(g.entities, entities)
	sort.SliceStable(g.entities, func(i, j int) bool {
		if g.entities[i].Level != g.entities[j].Level {
			return g.entities[i].Level < g.entities[j].Level
		}
		return g.entities[i].Code < g.entities[j].Code
	})

	if err := g.index(); err != nil {
		return nil, err
	}
	if err := g.validateParents(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gazetteer) index() error {
	if len(g.entities) == 0 {
		return malformed("", "no entities")
	}

	g.normalized = make([]string, len(g.entities))
	for i, e := range g.entities {
		if e.Code == "" {
			return malformed(e.Name, "entity has empty code")
		}
		if e.Name == "" {
			return malformed(e.Code, "entity has empty name")
		}
		if !e.Level.Valid() {
			return malformed(e.Code, "entity has invalid level %d", int(e.Level))
		}

		key := entityKey{level: e.Level, code: e.Code}
		if _, dup := g.byKey[key]; dup {
			return malformed(e.Code, "duplicate %s code", e.Level)
		}
		g.byKey[key] = i

		if e.Level == LevelCountry {
			if g.country >= 0 {
				return malformed(e.Code, "more than one country entity")
			}
			g.country = i
		}

		norm := normalize.Name(e.Name)
		g.normalized[i] = norm
		if g.byName[e.Level] == nil {
			g.byName[e.Level] = make(map[string][]int)
		}
		g.byName[e.Level][norm] = append(g.byName[e.Level][norm], i)
		g.byLevel[e.Level] = append(g.byLevel[e.Level], i)
		if e.ParentCode != "" {
			g.children[e.ParentCode] = append(g.children[e.ParentCode], i)
		}
	}

	if g.country < 0 {
		return malformed("", "no country entity")
	}
	return nil
}

func (g *Gazetteer) validateParents() error {
	for _, e := range g.entities {
		if e.Level == LevelCountry {
			if e.ParentCode != "" {
				return malformed(e.Code, "country entity has parent %s", e.ParentCode)
			}
			continue
		}
		if e.ParentCode == "" {
			return malformed(e.Code, "%s entity has no parent", e.Level)
		}
		if _, ok := g.Parent(e); !ok {
			return malformed(e.Code, "parent %s not found at %s level", e.ParentCode, e.Level.Parent())
		}
	}
	return nil
}

// Len returns the number of entities.
func (g *Gazetteer) Len() int { return len(g.entities) }

// CountByLevel returns entity counts keyed by level.
func (g *Gazetteer) CountByLevel() map[Level]int {
	out := make(map[Level]int, len(g.byLevel))
	for l, idx := range g.byLevel {
		out[l] = len(idx)
	}
	return out
}

// Country returns the single country entity.
func (g *Gazetteer) Country() Entity { return g.entities[g.country] }

// Get returns the entity with the given level and code.
func (g *Gazetteer) Get(level Level, code string) (Entity, bool) {
	i, ok := g.byKey[entityKey{level: level, code: code}]
	if !ok {
		return Entity{}, false
	}
	return g.entities[i], true
}

// Parent returns e's parent. HUCs may hang off a province or directly off
// a region; every other entity's parent sits exactly one level up.
func (g *Gazetteer) Parent(e Entity) (Entity, bool) {
	if e.ParentCode == "" {
		return Entity{}, false
	}
	if p, ok := g.Get(e.Level.Parent(), e.ParentCode); ok {
		return p, true
	}
	if e.IsHUC && e.Level == LevelMunicipality {
		return g.Get(LevelRegion, e.ParentCode)
	}
	return Entity{}, false
}

// RegionOf walks up from e and returns the code of its region, or "" when e
// is the country.
func (g *Gazetteer) RegionOf(e Entity) string {
	for cur, ok := e, true; ok; cur, ok = g.Parent(cur) {
		if cur.Level == LevelRegion {
			return cur.Code
		}
		if cur.Level < LevelRegion {
			break
		}
	}
	return ""
}

// ChildrenOf returns the entities whose parent code is parentCode, ordered
// by level and code.
func (g *Gazetteer) ChildrenOf(parentCode string) []Entity {
	idx := g.children[parentCode]
	out := make([]Entity, len(idx))
	for i, j := range idx {
		out[i] = g.entities[j]
	}
	return out
}

// Lookup ranks entities at level against an already-normalized name. When
// parentCode is set only children of that parent are considered. Exact
// name matches short-circuit with score 100. The result is nil when no
// entity exists in scope; absence is a normal outcome.
func (g *Gazetteer) Lookup(name string, level Level, parentCode string) []Candidate {
	if parentCode == "" {
		return g.rank(name, level, g.byLevel[level])
	}
	var pool []int
	for _, i := range g.children[parentCode] {
		if g.entities[i].Level == level {
			pool = append(pool, i)
		}
	}
	return g.rank(name, level, pool)
}

// LookupWhere is Lookup over the entities at level for which keep returns
// true.
func (g *Gazetteer) LookupWhere(name string, level Level, keep func(Entity) bool) []Candidate {
	var pool []int
	for _, i := range g.byLevel[level] {
		if keep == nil || keep(g.entities[i]) {
			pool = append(pool, i)
		}
	}
	return g.rank(name, level, pool)
}

func (g *Gazetteer) rank(name string, level Level, pool []int) []Candidate {
	if name == "" || len(pool) == 0 {
		return nil
	}

	inPool := make(map[int]bool, len(pool))
	for _, i := range pool {
		inPool[i] = true
	}

	var out []Candidate
	for _, i := range g.byName[level][name] {
		if inPool[i] {
			out = append(out, Candidate{Entity: g.entities[i], Normalized: g.normalized[i], Score: 100})
		}
	}

	if len(out) == 0 {
		out = make([]Candidate, 0, len(pool))
		for _, i := range pool {
			out = append(out, Candidate{
				Entity:     g.entities[i],
				Normalized: g.normalized[i],
				Score:      g.similarity(name, g.normalized[i]),
			})
		}
	}

	sortCandidates(out)
	return out
}

// sortCandidates orders by descending score, then shorter normalized name,
// then code so rankings are deterministic.
func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if len(c[i].Normalized) != len(c[j].Normalized) {
			return len(c[i].Normalized) < len(c[j].Normalized)
		}
		return c[i].Entity.Code < c[j].Entity.Code
	})
}
