package memory

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/engramhq/engram/pkg/config"
)

// Persona owns one independent memory: a short-term and a long-term tier.
// Personas never share entries; everything in both tiers carries this
// persona's name.
type Persona struct {
	Name  string
	Short *Store
	Long  *Store

	cfg config.PersonaConfig
}

// SearchResult pairs an entry with the tier it was found in.
type SearchResult struct {
	Entry *Entry
	Tier  Tier
}

// PersonaStats summarizes tier occupancy against capacity.
type PersonaStats struct {
	Persona       string `json:"persona"`
	ShortCount    int    `json:"short_count"`
	LongCount     int    `json:"long_count"`
	ShortCapacity int    `json:"short_capacity"`
	LongCapacity  int    `json:"long_capacity"`
}

// NewPersona opens (or creates) the persona's tier stores under
// dir/personas/<name>/.
func NewPersona(cfg config.PersonaConfig, dir string) *Persona {
	base := filepath.Join(dir, "personas", cfg.Name)
	return &Persona{
		Name:  cfg.Name,
		Short: NewStore(filepath.Join(base, "short.jsonl")),
		Long:  NewStore(filepath.Join(base, "long.jsonl")),
		cfg:   cfg,
	}
}

// Config returns the persona's configuration.
func (p *Persona) Config() config.PersonaConfig { return p.cfg }

// Add stores content as a new original entry in the short-term tier. When
// the persona's fragment multiplier is above 1, derived fragment entries
// are stored alongside it with lineage pointing at the original, so partial
// phrasings of the same fact can be retrieved (and promoted) independently.
func (p *Persona) Add(content, origin string, wake int64) (*Entry, error) {
	original := NewEntry(content, origin, p.Name, wake)
	entries := []*Entry{original}
	if p.cfg.FragmentMultiplier > 1 {
		entries = append(entries, fragments(original)...)
	}
	for _, entry := range entries {
		if err := p.Short.Add(entry); err != nil {
			return nil, err
		}
	}
	return original, nil
}

// fragments derives partial entries from an original: first half, second
// half, and a middle chunk. Originals too short to split yield fewer (or
// no) fragments.
func fragments(original *Entry) []*Entry {
	words := strings.Fields(original.Content)
	var out []*Entry
	if len(words) > 5 {
		mid := len(words) / 2
		out = append(out,
			newFragment(original, strings.Join(words[:mid], " "), KindFragmentFirst),
			newFragment(original, strings.Join(words[mid:], " "), KindFragmentSecond),
		)
	}
	if len(words) > 3 {
		start := len(words) / 4
		end := start + len(words)/2
		out = append(out, newFragment(original, strings.Join(words[start:end], " "), KindCoreConcept))
	}
	return out
}

// Search queries both tiers: top-k from short-term and half that (minimum
// 3) from long-term. Every hit is touched, which is what accrues the
// access counts the lifecycle promotion rule reads.
func (p *Persona) Search(query string, wake int64) ([]SearchResult, error) {
	shortHits, err := p.Short.Search(query, p.cfg.SearchTopK, wake)
	if err != nil {
		return nil, err
	}
	longK := p.cfg.SearchTopK / 2
	if longK < 3 {
		longK = 3
	}
	longHits, err := p.Long.Search(query, longK, wake)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(shortHits)+len(longHits))
	for _, e := range shortHits {
		results = append(results, SearchResult{Entry: e, Tier: TierShort})
	}
	for _, e := range longHits {
		results = append(results, SearchResult{Entry: e, Tier: TierLong})
	}
	return results, nil
}

// Stats reports current tier occupancy.
func (p *Persona) Stats() PersonaStats {
	return PersonaStats{
		Persona:       p.Name,
		ShortCount:    p.Short.Count(),
		LongCount:     p.Long.Count(),
		ShortCapacity: p.cfg.ShortCapacity,
		LongCapacity:  p.cfg.LongCapacity,
	}
}

// FormatForPrompt renders search hits plus the most recent short-term
// entries as a block ready for injection into a reasoning prompt. At most
// ten lines, each capped at 300 bytes of content.
func (p *Persona) FormatForPrompt(query string, wake int64) (string, error) {
	results, err := p.Search(query, wake)
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.Entry.Content] = true
	}

	// Recent short-term entries surface even without a keyword match.
	recent := p.Short.All()
	// All() is ID-ordered and ULIDs are time-ordered, so the newest
	// entries are at the end.
	added := 0
	for i := len(recent) - 1; i >= 0 && added < 5; i-- {
		e := recent[i]
		if seen[e.Content] {
			continue
		}
		results = append(results, SearchResult{Entry: e, Tier: TierShort})
		seen[e.Content] = true
		added++
	}

	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== YOUR MEMORIES (%s) ===\n", p.Name)
	for i, r := range results {
		if i >= 10 {
			break
		}
		content := r.Entry.Content
		if len(content) > 300 {
			// Never cut in the middle of a multi-byte rune.
			cut := 300
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		fmt.Fprintf(&sb, "[%s|w%d|%dx] %s\n", r.Tier, r.Entry.CreatedWake, r.Entry.AccessCount, content)
	}
	sb.WriteString("===")
	return sb.String(), nil
}
