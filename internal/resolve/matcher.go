package resolve

import (
	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/normalize"
	"github.com/reliefmap/pcoder/internal/policy"
)

// Config tunes matching.
type Config struct {
	// Threshold is the minimum score (inclusive) for a match.
	Threshold int
	// AmbiguityDelta is the largest score gap between the chosen candidate
	// and a runner-up that still counts as a tie.
	AmbiguityDelta int
}

// DefaultConfig returns the matching defaults.
func DefaultConfig() Config {
	return Config{Threshold: 80, AmbiguityDelta: 1}
}

// Matcher resolves rows against a gazetteer. It keeps no state between
// Resolve calls and is safe for concurrent use.
type Matcher struct {
	g      *gazetteer.Gazetteer
	policy *policy.Policy
	cfg    Config
}

// New creates a Matcher. A nil policy disables special cases.
func New(g *gazetteer.Gazetteer, p *policy.Policy, cfg Config) *Matcher {
	return &Matcher{g: g, policy: p, cfg: cfg}
}

// pass is the mutable state of one Resolve call.
type pass struct {
	m   *Matcher
	ctx Context

	// Codes resolved for province and municipality rows, by Seq. An empty
	// code records a row that did not resolve.
	provinceBySeq map[int]string
	muniBySeq     map[int]string
	// Region assigned to each resolved province, including policy
	// reassignments.
	provinceRegion map[string]string
}

// Resolve matches rows in order. Every input row yields one output row.
func (m *Matcher) Resolve(rows []detect.LeveledRow) []ResolvedRow {
	p := &pass{
		m:              m,
		provinceBySeq:  make(map[int]string),
		muniBySeq:      make(map[int]string),
		provinceRegion: make(map[string]string),
	}
	out := make([]ResolvedRow, len(rows))
	for i, r := range rows {
		out[i] = p.resolve(r)
	}
	return out
}

func (p *pass) resolve(row detect.LeveledRow) ResolvedRow {
	res := ResolvedRow{
		LeveledRow: row,
		Normalized: normalize.Name(row.Text),
		Outcome:    OutcomeNoMatch,
	}
	if res.Normalized == "" && row.Level != gazetteer.LevelCountry {
		res.Outcome = OutcomeSkipped
		return res
	}

	switch row.Level {
	case gazetteer.LevelCountry:
		p.country(&res)
	case gazetteer.LevelRegion:
		p.region(&res)
	case gazetteer.LevelProvince:
		p.province(&res)
	case gazetteer.LevelMunicipality:
		if row.HUC {
			p.huc(&res)
		} else {
			p.municipality(&res)
		}
	case gazetteer.LevelBarangay:
		p.barangay(&res)
	default:
		res.Outcome = OutcomeSkipped
		return res
	}

	if !res.Outcome.Resolved() {
		level := row.Level
		if row.HUC {
			// An unresolved city sits directly under its region.
			level = gazetteer.LevelProvince
		}
		res.Path = p.contextPath(level, res.Context)
	}
	return res
}

func (p *pass) country(res *ResolvedRow) {
	c := p.m.g.Country()
	res.Context = p.ctx
	p.accept(res, c, 100, OutcomeMatched)
	res.Path = Path{ADM0: c.Code}
}

func (p *pass) region(res *ResolvedRow) {
	res.Context = p.ctx
	best, ok := p.pick(res, p.m.g.Lookup(res.Normalized, gazetteer.LevelRegion, ""), nil)

	// A region row opens a new scope whether or not it resolves.
	p.ctx = Context{}
	if !ok {
		return
	}
	p.accept(res, best.Entity, best.Score, OutcomeMatched)
	p.ctx.Region = best.Entity.Code
	res.Path = Path{ADM0: p.m.g.Country().Code, ADM1: best.Entity.Code}
}

func (p *pass) province(res *ResolvedRow) {
	g := p.m.g
	res.Context = p.ctx
	p.provinceBySeq[res.Seq] = ""

	entry, hasEntry := p.m.policy.Lookup(res.Normalized, gazetteer.LevelProvince)
	var (
		entity  gazetteer.Entity
		score   int
		outcome = OutcomeMatched
	)

	switch {
	case hasEntry && entry.Code != "":
		entity = p.override(entry, res.Text)
		score, outcome = 100, OutcomeOverridden
	default:
		inRegion := func(e gazetteer.Entity) bool { return e.ParentCode == p.ctx.Region }
		var best gazetteer.Candidate
		ok := false
		if p.ctx.Region != "" && !hasEntry {
			best, ok = p.pick(res, g.Lookup(res.Normalized, gazetteer.LevelProvince, p.ctx.Region), nil)
		}
		if !ok {
			best, ok = p.pick(res, g.Lookup(res.Normalized, gazetteer.LevelProvince, ""), inRegion)
		}
		if !ok {
			return
		}
		entity, score = best.Entity, best.Score
		if hasEntry {
			outcome = OutcomeOverridden
		}
	}

	region := g.RegionOf(entity)
	if hasEntry && entry.Region != "" {
		region = entry.Region
	}
	if region == "" {
		region = p.ctx.Region
	}
	if hasEntry {
		res.Policy = entry.Reason
	}

	p.accept(res, entity, score, outcome)
	if region != p.ctx.Region {
		res.Reconciled = true
		p.ctx.Region = region
	}
	p.ctx.Province = entity.Code
	p.ctx.Municipality = ""
	p.provinceBySeq[res.Seq] = entity.Code
	p.provinceRegion[entity.Code] = region
	res.Path = Path{ADM0: g.Country().Code, ADM1: region, ADM2: entity.Code}
}

// scopeProvince returns the province a municipality row is matched under:
// the resolution of its detected owner row when it has one, otherwise the
// active province.
func (p *pass) scopeProvince(row detect.LeveledRow) string {
	if row.ParentSeq >= 0 && row.ParentSeq != row.Seq {
		if code, ok := p.provinceBySeq[row.ParentSeq]; ok {
			return code
		}
	}
	return p.ctx.Province
}

func (p *pass) municipality(res *ResolvedRow) {
	g := p.m.g
	province := p.scopeProvince(res.LeveledRow)
	res.Context = Context{Region: p.ctx.Region, Province: province, Municipality: p.ctx.Municipality}
	p.muniBySeq[res.Seq] = ""

	entry, hasEntry := p.m.policy.Lookup(res.Normalized, gazetteer.LevelMunicipality)
	var (
		entity  gazetteer.Entity
		score   int
		outcome = OutcomeMatched
	)
	if hasEntry && entry.Code != "" {
		entity = p.override(entry, res.Text)
		score, outcome = 100, OutcomeOverridden
	} else {
		prefer := func(e gazetteer.Entity) bool {
			return (province != "" && e.ParentCode == province) ||
				(p.ctx.Region != "" && g.RegionOf(e) == p.ctx.Region)
		}
		cands := g.Lookup(res.Normalized, gazetteer.LevelMunicipality, province)
		if city, ok := g.Get(gazetteer.LevelMunicipality, province); ok {
			// A city standing as its own province is its only municipality.
			cands = g.LookupWhere(res.Normalized, gazetteer.LevelMunicipality, func(e gazetteer.Entity) bool {
				return e.Code == city.Code
			})
		}
		best, ok := p.pick(res, cands, prefer)
		if !ok {
			return
		}
		entity, score = best.Entity, best.Score
		if hasEntry {
			outcome = OutcomeOverridden
		}
	}
	if hasEntry {
		res.Policy = entry.Reason
	}

	p.accept(res, entity, score, outcome)
	p.ctx.Municipality = entity.Code
	p.muniBySeq[res.Seq] = entity.Code
	res.Path = p.entityPath(entity)
	if hasEntry && entry.Region != "" {
		res.Path.ADM1 = entry.Region
	}
}

// huc matches a highly urbanized city row, preferring HUC entities in the
// active region, then anywhere, then any municipality. The city becomes the
// active province for the rows that follow.
func (p *pass) huc(res *ResolvedRow) {
	g := p.m.g
	res.Context = p.ctx
	p.provinceBySeq[res.Seq] = ""
	p.muniBySeq[res.Seq] = ""

	entry, hasEntry := p.m.policy.Lookup(res.Normalized, gazetteer.LevelMunicipality)
	var (
		entity  gazetteer.Entity
		score   int
		outcome = OutcomeMatched
	)
	if hasEntry && entry.Code != "" {
		entity = p.override(entry, res.Text)
		score, outcome = 100, OutcomeOverridden
	} else {
		region := p.ctx.Region
		searches := []func(gazetteer.Entity) bool{
			func(e gazetteer.Entity) bool { return e.IsHUC && region != "" && g.RegionOf(e) == region },
			func(e gazetteer.Entity) bool { return e.IsHUC },
			nil,
		}
		inRegion := func(e gazetteer.Entity) bool { return region != "" && g.RegionOf(e) == region }

		var best gazetteer.Candidate
		ok := false
		for _, keep := range searches {
			if best, ok = p.pick(res, g.LookupWhere(res.Normalized, gazetteer.LevelMunicipality, keep), inRegion); ok {
				break
			}
		}
		if !ok {
			return
		}
		entity, score = best.Entity, best.Score
		if hasEntry {
			outcome = OutcomeOverridden
		}
	}
	if hasEntry {
		res.Policy = entry.Reason
	}

	region := g.RegionOf(entity)
	if hasEntry && entry.Region != "" {
		region = entry.Region
	}
	p.accept(res, entity, score, outcome)
	if region != "" && region != p.ctx.Region {
		res.Reconciled = true
		p.ctx.Region = region
	}
	p.ctx.Province = entity.Code
	p.ctx.Municipality = entity.Code
	p.provinceBySeq[res.Seq] = entity.Code
	p.muniBySeq[res.Seq] = entity.Code
	p.provinceRegion[entity.Code] = region

	res.Path = p.entityPath(entity)
	res.Path.ADM1 = region
	if res.Path.ADM2 == "" {
		res.Path.ADM2 = entity.Code
	}
}

func (p *pass) barangay(res *ResolvedRow) {
	g := p.m.g
	muni := p.ctx.Municipality
	if res.ParentSeq >= 0 {
		if code, ok := p.muniBySeq[res.ParentSeq]; ok {
			muni = code
		}
	}
	province := p.ctx.Province
	res.Context = Context{Region: p.ctx.Region, Province: province, Municipality: muni}

	var cands []gazetteer.Candidate
	switch {
	case muni != "":
		cands = g.Lookup(res.Normalized, gazetteer.LevelBarangay, muni)
	case province != "":
		cands = g.LookupWhere(res.Normalized, gazetteer.LevelBarangay, func(e gazetteer.Entity) bool {
			m, ok := g.Get(gazetteer.LevelMunicipality, e.ParentCode)
			return ok && (m.ParentCode == province || m.Code == province)
		})
	default:
		cands = g.Lookup(res.Normalized, gazetteer.LevelBarangay, "")
	}

	best, ok := p.pick(res, cands, nil)
	if !ok {
		return
	}
	p.accept(res, best.Entity, best.Score, OutcomeMatched)
	res.Path = p.entityPath(best.Entity)
}

// override returns the entity a policy entry points at. A code missing from
// the gazetteer still resolves: the policy outranks the reference data.
func (p *pass) override(entry policy.Entry, text string) gazetteer.Entity {
	if e, ok := p.m.g.Get(entry.Level, entry.Code); ok {
		return e
	}
	return gazetteer.Entity{Code: entry.Code, Name: text, Level: entry.Level, ParentCode: entry.Region}
}

func (p *pass) accept(res *ResolvedRow, e gazetteer.Entity, score int, outcome Outcome) {
	ent := e
	res.Entity = &ent
	res.Score = score
	res.Outcome = outcome
}

// pick applies the threshold and tie-break to ranked candidates. On failure
// the best score is still recorded on res.
func (p *pass) pick(res *ResolvedRow, cands []gazetteer.Candidate, prefer func(gazetteer.Entity) bool) (gazetteer.Candidate, bool) {
	if len(cands) == 0 {
		return gazetteer.Candidate{}, false
	}

	chosen := 0
	if prefer != nil {
		for i, c := range cands {
			if c.Score != cands[0].Score {
				break
			}
			if prefer(c.Entity) {
				chosen = i
				break
			}
		}
	}
	best := cands[chosen]
	if best.Score > res.Score {
		res.Score = best.Score
	}
	if best.Score < p.m.cfg.Threshold {
		return best, false
	}

	samePreference := func(a, b gazetteer.Entity) bool {
		return prefer == nil || prefer(a) == prefer(b)
	}
	res.Ambiguous = false
	for i, c := range cands {
		if i == chosen {
			continue
		}
		if best.Score-c.Score > p.m.cfg.AmbiguityDelta {
			break
		}
		if samePreference(best.Entity, c.Entity) && len(best.Normalized) == len(c.Normalized) {
			res.Ambiguous = true
			break
		}
	}
	return best, true
}

// entityPath fills a path from e up to the country, applying province
// region reassignments made earlier in the pass. A HUC without a province
// above it stands in as its own province.
func (p *pass) entityPath(e gazetteer.Entity) Path {
	g := p.m.g
	path := Path{ADM0: g.Country().Code}
	huc := ""
	for cur, ok := e, true; ok; cur, ok = g.Parent(cur) {
		path = path.Set(cur.Level, cur.Code)
		if cur.IsHUC && cur.Level == gazetteer.LevelMunicipality {
			huc = cur.Code
		}
	}
	if path.ADM2 == "" && huc != "" {
		path.ADM2 = huc
	}
	if e.Level >= gazetteer.LevelProvince && path.ADM2 != "" {
		if region, ok := p.provinceRegion[path.ADM2]; ok && region != "" {
			path.ADM1 = region
		}
	}
	return path
}

// contextPath is the path of an unresolved row: the context it was matched
// under, above its own level.
func (p *pass) contextPath(level gazetteer.Level, ctx Context) Path {
	path := Path{ADM0: p.m.g.Country().Code}
	if level > gazetteer.LevelRegion {
		path.ADM1 = ctx.Region
	}
	if level > gazetteer.LevelProvince {
		path.ADM2 = ctx.Province
	}
	if level > gazetteer.LevelMunicipality {
		path.ADM3 = ctx.Municipality
	}
	return path
}
