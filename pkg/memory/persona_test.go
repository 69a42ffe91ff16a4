package memory

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/engramhq/engram/pkg/config"
)

func newTestPersona(t *testing.T, cfg config.PersonaConfig) *Persona {
	t.Helper()
	return NewPersona(cfg, t.TempDir())
}

func TestPersonaAddWithoutFragments(t *testing.T) {
	p := newTestPersona(t, defaultTestPersona())

	entry, err := p.Add("a fact worth exactly one entry in the store", "test", 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Short.Count() != 1 {
		t.Errorf("short count = %d, want 1 (fragment multiplier 1)", p.Short.Count())
	}
	if entry.Kind != KindOriginal {
		t.Errorf("kind = %s, want %s", entry.Kind, KindOriginal)
	}
}

func TestPersonaAddWithFragments(t *testing.T) {
	cfg := defaultTestPersona()
	cfg.FragmentMultiplier = 4
	p := newTestPersona(t, cfg)

	original, err := p.Add("the deployment pipeline failed because the staging credentials expired yesterday", "test", 3)
	if err != nil {
		t.Fatal(err)
	}

	// Original plus first half, second half, and core concept.
	if p.Short.Count() != 4 {
		t.Fatalf("short count = %d, want 4", p.Short.Count())
	}

	kinds := make(map[Kind]int)
	for _, e := range p.Short.All() {
		kinds[e.Kind]++
		if e.Kind == KindOriginal {
			continue
		}
		if e.Lineage != original.ID {
			t.Errorf("fragment %s lineage = %q, want %q", e.ID, e.Lineage, original.ID)
		}
		if e.CreatedWake != original.CreatedWake {
			t.Errorf("fragment %s created at w%d, want w%d", e.ID, e.CreatedWake, original.CreatedWake)
		}
		if !strings.Contains(original.Content, e.Content) {
			t.Errorf("fragment content %q not derived from original", e.Content)
		}
	}
	for _, k := range []Kind{KindOriginal, KindFragmentFirst, KindFragmentSecond, KindCoreConcept} {
		if kinds[k] != 1 {
			t.Errorf("kind %s count = %d, want 1", k, kinds[k])
		}
	}
}

func TestPersonaAddShortContentYieldsFewerFragments(t *testing.T) {
	cfg := defaultTestPersona()
	cfg.FragmentMultiplier = 4
	p := newTestPersona(t, cfg)

	// Three words or fewer: nothing to split.
	if _, err := p.Add("too short", "test", 1); err != nil {
		t.Fatal(err)
	}
	if p.Short.Count() != 1 {
		t.Errorf("short count = %d, want 1 for unsplittable content", p.Short.Count())
	}
}

func TestPersonaSearchSpansTiers(t *testing.T) {
	p := newTestPersona(t, defaultTestPersona())

	if _, err := p.Add("incident report for the payment service", "test", 1); err != nil {
		t.Fatal(err)
	}
	longEntry := NewEntry("payment service architecture overview", "test", "default", 1)
	if err := p.Long.Add(longEntry); err != nil {
		t.Fatal(err)
	}

	results, err := p.Search("payment service", 5)
	if err != nil {
		t.Fatal(err)
	}
	tiers := make(map[Tier]int)
	for _, r := range results {
		tiers[r.Tier]++
	}
	if tiers[TierShort] != 1 || tiers[TierLong] != 1 {
		t.Errorf("tier distribution = %v, want one hit per tier", tiers)
	}
}

func TestPersonaFormatForPrompt(t *testing.T) {
	p := newTestPersona(t, defaultTestPersona())

	if _, err := p.Add("the api gateway listens on port 8443", "test", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Add("unrelated note about standup times", "test", 2); err != nil {
		t.Fatal(err)
	}

	block, err := p.FormatForPrompt("gateway port", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(block, "=== YOUR MEMORIES (default) ===") {
		t.Errorf("block header wrong:\n%s", block)
	}
	if !strings.Contains(block, "8443") {
		t.Errorf("search hit missing from block:\n%s", block)
	}
	// The recent unmatched entry surfaces too.
	if !strings.Contains(block, "standup") {
		t.Errorf("recent entry missing from block:\n%s", block)
	}
}

func TestPersonaFormatForPromptRuneSafeTruncation(t *testing.T) {
	p := newTestPersona(t, defaultTestPersona())

	// 451 bytes of three-byte runes offset by one: byte 300 lands mid-rune,
	// so a naive byte slice would leave a broken sequence in the block.
	content := "x" + strings.Repeat("界", 150)
	if _, err := p.Add(content, "test", 1); err != nil {
		t.Fatal(err)
	}

	block, err := p.FormatForPrompt("anything", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(block) {
		t.Error("truncated memory block contains an invalid UTF-8 sequence")
	}
}

func TestPersonaFormatForPromptEmpty(t *testing.T) {
	p := newTestPersona(t, defaultTestPersona())
	block, err := p.FormatForPrompt("anything", 1)
	if err != nil {
		t.Fatal(err)
	}
	if block != "" {
		t.Errorf("empty persona produced a block: %q", block)
	}
}

func TestPersonaStats(t *testing.T) {
	cfg := defaultTestPersona()
	cfg.ShortCapacity = 10
	cfg.LongCapacity = 20
	p := newTestPersona(t, cfg)

	if _, err := p.Add("one", "test", 1); err != nil {
		t.Fatal(err)
	}
	stats := p.Stats()
	if stats.ShortCount != 1 || stats.LongCount != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", stats.ShortCount, stats.LongCount)
	}
	if stats.ShortCapacity != 10 || stats.LongCapacity != 20 {
		t.Errorf("capacities = (%d, %d), want (10, 20)", stats.ShortCapacity, stats.LongCapacity)
	}
}
