// Package memory implements the tiered knowledge store and its wake-based
// lifecycle: short-term entries age out or earn promotion to long-term,
// long-term entries age out to an append-only archive, and every tier is
// held under a hard capacity ceiling.
//
// All aging arithmetic subtracts logical wake numbers. Wall-clock time is
// never consulted.
package memory

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Kind classifies how an entry came to exist.
type Kind string

const (
	// KindOriginal is a directly stored entry.
	KindOriginal Kind = "original"
	// KindFragmentFirst is the first-half fragment of an original entry.
	KindFragmentFirst Kind = "fragment-first"
	// KindFragmentSecond is the second-half fragment of an original entry.
	KindFragmentSecond Kind = "fragment-second"
	// KindCoreConcept is the middle-chunk fragment of an original entry.
	KindCoreConcept Kind = "core-concept"
)

// Entry is a single knowledge record. Entries are created in a persona's
// short-term tier and only ever mutated through Touch.
type Entry struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Origin  string `json:"origin"`
	Persona string `json:"persona"`
	Kind    Kind   `json:"kind"`

	// Lineage optionally references the parent entry a fragment was derived
	// from. It is informational only: it never implies ownership and the
	// referenced entry may have been purged independently.
	Lineage string `json:"lineage,omitempty"`

	CreatedWake      int64 `json:"created_wake"`
	LastAccessedWake int64 `json:"last_accessed_wake"`
	AccessCount      int   `json:"access_count"`
}

// NewEntry creates an original entry at the given wake. The entry counts as
// accessed once at creation.
func NewEntry(content, origin, persona string, wake int64) *Entry {
	return &Entry{
		ID:               ulid.Make().String(),
		Content:          content,
		Origin:           origin,
		Persona:          persona,
		Kind:             KindOriginal,
		CreatedWake:      wake,
		LastAccessedWake: wake,
		AccessCount:      1,
	}
}

// newFragment creates a derived entry whose lineage points at parent.
func newFragment(parent *Entry, content string, kind Kind) *Entry {
	return &Entry{
		ID:               ulid.Make().String(),
		Content:          content,
		Origin:           parent.Origin,
		Persona:          parent.Persona,
		Kind:             kind,
		Lineage:          parent.ID,
		CreatedWake:      parent.CreatedWake,
		LastAccessedWake: parent.LastAccessedWake,
		AccessCount:      1,
	}
}

// Touch records a retrieval at the given wake. The last-accessed wake never
// moves backwards, so a replayed pass at an earlier wake cannot violate the
// lastAccessed >= created invariant.
func (e *Entry) Touch(wake int64) {
	if wake > e.LastAccessedWake {
		e.LastAccessedWake = wake
	}
	e.AccessCount++
}

// Validate reports whether the entry satisfies its construction invariants.
// Entries loaded from disk pass through here so corrupt records are refused
// rather than silently repaired.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("memory: entry has no id")
	}
	if e.Persona == "" {
		return fmt.Errorf("memory: entry %s has no persona", e.ID)
	}
	if e.LastAccessedWake < e.CreatedWake {
		return fmt.Errorf("memory: entry %s accessed at wake %d before creation at wake %d",
			e.ID, e.LastAccessedWake, e.CreatedWake)
	}
	if e.AccessCount < 1 {
		return fmt.Errorf("memory: entry %s has access count %d", e.ID, e.AccessCount)
	}
	return nil
}
