package engine

import (
	"math"
	"sort"
	"time"
)

// Pinned heuristic constants (spec §4.8/§9): tests pin these, they are not
// open to silent adjustment.
const (
	sharedTagsWeightMultiplier = 0.3
	contentRankThreshold       = -0.5
	contentRankNormalizer      = 10.0
	contentWeightMin           = 0.1
	contentWeightMax           = 0.9
	temporalWeight             = 0.4
	temporalWindow             = 1 * time.Hour
	prefixTokenCount           = 5
)

// runAutoLink runs the three heuristics on newly created memory m, scoped
// to its project and to alive peers. All failures are swallowed: inference
// can never break a legitimate write.
func (s *Store) runAutoLink(m Memory) {
	defer func() { _ = recover() }()

	candidates, err := s.aliveProjectPeers(m.Project, m.ID)
	if err != nil {
		return
	}

	s.autoLinkSharedTags(m, candidates)
	s.autoLinkContentSimilarity(m, candidates)
	s.autoLinkTemporal(m, candidates)
}

func (s *Store) aliveProjectPeers(project, excludeID string) ([]Memory, error) {
	rows, err := s.db.Query(
		`SELECT `+memoryColumns+` FROM memories
		 WHERE project = ? AND id != ? AND (expires_at IS NULL OR expires_at > datetime('now'))`,
		project, excludeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRow(sqlRowScanner{rows: rows})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

func (s *Store) linkExists(from, to string) bool {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM memory_links WHERE from_id = ? AND to_id = ?`, from, to).Scan(&exists)
	return err == nil
}

// autoLinkSharedTags: if the new memory has >=2 tags, link to the top-10
// candidates sharing >=2 tags, relation related, weight
// min(1.0, shared_count * 0.3).
func (s *Store) autoLinkSharedTags(m Memory, candidates []Memory) {
	if len(m.Tags) < 2 {
		return
	}

	type scored struct {
		candidate Memory
		shared    int
	}
	var scoredList []scored
	for _, c := range candidates {
		shared := sharedTagCount(m.Tags, c.Tags)
		if shared >= 2 {
			scoredList = append(scoredList, scored{c, shared})
		}
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].shared > scoredList[j].shared })
	if len(scoredList) > 10 {
		scoredList = scoredList[:10]
	}

	for _, sc := range scoredList {
		if s.linkExists(m.ID, sc.candidate.ID) {
			continue
		}
		weight := math.Min(1.0, float64(sc.shared)*sharedTagsWeightMultiplier)
		_, _ = s.Link(m.ID, sc.candidate.ID, RelationRelated, weight, true)
	}
}

// autoLinkContentSimilarity: run an any-mode FTS query over the new
// memory's first 5 tokens; for candidates with rank < -0.5, link with
// relation references and weight clamp(|rank|/10, 0.1, 0.9). Top 5 by rank.
func (s *Store) autoLinkContentSimilarity(m Memory, candidates []Memory) {
	tokens := firstTokens(m.Content, prefixTokenCount)
	if len(tokens) == 0 {
		return
	}
	ftsExpr, ok := compileFTSQuery(joinTokens(tokens), SearchModeAny, 0)
	if !ok {
		return
	}

	type ranked struct {
		candidate Memory
		rank      float64
	}
	var rankedList []ranked
	for _, c := range candidates {
		rank, found := ftsRankFor(s, c.ID, ftsExpr)
		if !found || rank >= contentRankThreshold {
			continue
		}
		rankedList = append(rankedList, ranked{c, rank})
	}
	sort.SliceStable(rankedList, func(i, j int) bool { return rankedList[i].rank < rankedList[j].rank })
	if len(rankedList) > 5 {
		rankedList = rankedList[:5]
	}

	for _, r := range rankedList {
		if s.linkExists(m.ID, r.candidate.ID) {
			continue
		}
		weight := clampRange(math.Abs(r.rank)/contentRankNormalizer, contentWeightMin, contentWeightMax)
		_, _ = s.Link(m.ID, r.candidate.ID, RelationReferences, weight, true)
	}
}

// autoLinkTemporal: peers in the same category created within +/-1h of m,
// ordered by absolute time delta, linked with relation related, weight 0.4,
// up to 5.
func (s *Store) autoLinkTemporal(m Memory, candidates []Memory) {
	created, err := time.Parse("2006-01-02 15:04:05", m.CreatedAt)
	if err != nil {
		return
	}

	type withDelta struct {
		candidate Memory
		delta     time.Duration
	}
	var withinWindow []withDelta
	for _, c := range candidates {
		if c.Category != m.Category {
			continue
		}
		ct, err := time.Parse("2006-01-02 15:04:05", c.CreatedAt)
		if err != nil {
			continue
		}
		delta := created.Sub(ct)
		if delta < 0 {
			delta = -delta
		}
		if delta <= temporalWindow {
			withinWindow = append(withinWindow, withDelta{c, delta})
		}
	}
	sort.SliceStable(withinWindow, func(i, j int) bool { return withinWindow[i].delta < withinWindow[j].delta })
	if len(withinWindow) > 5 {
		withinWindow = withinWindow[:5]
	}

	for _, w := range withinWindow {
		if s.linkExists(m.ID, w.candidate.ID) {
			continue
		}
		_, _ = s.Link(m.ID, w.candidate.ID, RelationRelated, temporalWeight, true)
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func joinTokens(tokens []string) string {
	out := tokens[0]
	for _, t := range tokens[1:] {
		out += " " + t
	}
	return out
}

// SuggestLinks is the non-mutating analogue of auto-link: it never writes.
// If ID is given, analyze that memory; otherwise analyze up to 5 project
// orphans. Uses the same three heuristics with a gentler shared-tags>=1
// threshold, excludes already-linked peers, dedups per (from,to), capped at
// limit (default 20).
func (s *Store) SuggestLinks(p SuggestLinksParams) ([]Suggestion, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var subjects []Memory
	if p.ID != "" {
		m, err := s.GetByID(p.ID)
		if err != nil {
			return nil, err
		}
		subjects = []Memory{m}
	} else {
		orphans, err := s.projectOrphans(p.Project, 5)
		if err != nil {
			return nil, newStorage(err)
		}
		subjects = orphans
	}

	seen := make(map[string]bool)
	var suggestions []Suggestion

	for _, subject := range subjects {
		candidates, err := s.aliveProjectPeers(subject.Project, subject.ID)
		if err != nil {
			return nil, newStorage(err)
		}
		suggestions = append(suggestions, s.suggestSharedTags(subject, candidates, seen)...)
		suggestions = append(suggestions, s.suggestContentSimilarity(subject, candidates, seen)...)
		suggestions = append(suggestions, s.suggestTemporal(subject, candidates, seen)...)
		if len(suggestions) >= limit {
			break
		}
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (s *Store) projectOrphans(project string, limit int) ([]Memory, error) {
	rows, err := s.db.Query(
		`SELECT `+memoryColumns+` FROM memories m
		 WHERE project = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		   AND NOT EXISTS (SELECT 1 FROM memory_links l WHERE l.from_id = m.id OR l.to_id = m.id)
		 LIMIT ?`,
		project, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRow(sqlRowScanner{rows: rows})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func dedupKey(from, to string) string { return from + "\x00" + to }

func (s *Store) suggestSharedTags(m Memory, candidates []Memory, seen map[string]bool) []Suggestion {
	var out []Suggestion
	for _, c := range candidates {
		shared := sharedTagCount(m.Tags, c.Tags)
		if shared < 1 {
			continue
		}
		key := dedupKey(m.ID, c.ID)
		if seen[key] || s.linkExists(m.ID, c.ID) {
			continue
		}
		seen[key] = true
		out = append(out, Suggestion{
			FromID: m.ID, ToID: c.ID,
			Preview: previewContent(c.Content, 80), ToCategory: c.Category, ToTags: c.Tags,
			SuggestedRelation: RelationRelated,
			Weight:            math.Min(1.0, float64(shared)*sharedTagsWeightMultiplier),
			Reason:            ReasonSharedTags,
		})
	}
	return out
}

func (s *Store) suggestContentSimilarity(m Memory, candidates []Memory, seen map[string]bool) []Suggestion {
	tokens := firstTokens(m.Content, prefixTokenCount)
	if len(tokens) == 0 {
		return nil
	}
	ftsExpr, ok := compileFTSQuery(joinTokens(tokens), SearchModeAny, 0)
	if !ok {
		return nil
	}

	var out []Suggestion
	for _, c := range candidates {
		rank, found := ftsRankFor(s, c.ID, ftsExpr)
		if !found || rank >= contentRankThreshold {
			continue
		}
		key := dedupKey(m.ID, c.ID)
		if seen[key] || s.linkExists(m.ID, c.ID) {
			continue
		}
		seen[key] = true
		out = append(out, Suggestion{
			FromID: m.ID, ToID: c.ID,
			Preview: previewContent(c.Content, 80), ToCategory: c.Category, ToTags: c.Tags,
			SuggestedRelation: RelationReferences,
			Weight:            clampRange(math.Abs(rank)/contentRankNormalizer, contentWeightMin, contentWeightMax),
			Reason:            ReasonContentSimilarity,
		})
	}
	return out
}

func (s *Store) suggestTemporal(m Memory, candidates []Memory, seen map[string]bool) []Suggestion {
	created, err := time.Parse("2006-01-02 15:04:05", m.CreatedAt)
	if err != nil {
		return nil
	}

	var out []Suggestion
	for _, c := range candidates {
		if c.Category != m.Category {
			continue
		}
		ct, err := time.Parse("2006-01-02 15:04:05", c.CreatedAt)
		if err != nil {
			continue
		}
		delta := created.Sub(ct)
		if delta < 0 {
			delta = -delta
		}
		if delta > temporalWindow {
			continue
		}
		key := dedupKey(m.ID, c.ID)
		if seen[key] || s.linkExists(m.ID, c.ID) {
			continue
		}
		seen[key] = true
		out = append(out, Suggestion{
			FromID: m.ID, ToID: c.ID,
			Preview: previewContent(c.Content, 80), ToCategory: c.Category, ToTags: c.Tags,
			SuggestedRelation: RelationRelated,
			Weight:            temporalWeight,
			Reason:            ReasonTemporalProximity,
		})
	}
	return out
}

func previewContent(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max]
}
