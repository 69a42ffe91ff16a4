package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/engramhq/engram/pkg/config"
)

// PersonaCounts aggregates what one lifecycle pass did to one persona.
type PersonaCounts struct {
	Purged          int    `json:"purged"`
	Promoted        int    `json:"promoted"`
	Archived        int    `json:"archived"`
	CapacityEvicted int    `json:"capacity_evicted"`
	Error           string `json:"error,omitempty"`
}

// PassStats is the aggregate result of one lifecycle pass across all
// personas.
type PassStats struct {
	Wake      int64                     `json:"wake"`
	Timestamp time.Time                 `json:"timestamp"`
	Personas  map[string]*PersonaCounts `json:"personas"`
}

// Total sums a field across personas for quick observability checks.
func (s *PassStats) Total() PersonaCounts {
	var t PersonaCounts
	for _, c := range s.Personas {
		t.Purged += c.Purged
		t.Promoted += c.Promoted
		t.Archived += c.Archived
		t.CapacityEvicted += c.CapacityEvicted
	}
	return t
}

// Lifecycle runs the once-per-wake sweep over every persona: age-based
// purge, promotion, and archival first, capacity enforcement strictly
// after. Running age rules before capacity rules means capacity pressure
// can only ever evict entries that already survived natural aging — fresh
// data is never sacrificed ahead of stale data.
type Lifecycle struct {
	registry  *Registry
	cfg       config.LifecycleConfig
	auditPath string
}

// NewLifecycle creates the lifecycle manager for a registry. The audit log
// is appended under the registry's data directory.
func NewLifecycle(registry *Registry, cfg config.LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		registry:  registry,
		cfg:       cfg,
		auditPath: filepath.Join(registry.DataDir(), "lifecycle.log"),
	}
}

// Run executes one full lifecycle pass at currentWake and returns per-
// persona counts. A persona whose pass fails mid-way is recorded and
// skipped; other personas still complete — tiers are independent, so there
// is no cross-persona coupling to unwind. Run is idempotent for a given
// wake: conditions are re-evaluated against current state, never a delta,
// so an immediate second run finds nothing left to do.
func (l *Lifecycle) Run(currentWake int64) (*PassStats, error) {
	stats := &PassStats{
		Wake:      currentWake,
		Timestamp: time.Now().UTC(),
		Personas:  make(map[string]*PersonaCounts),
	}

	for _, name := range l.registry.Names() {
		persona := l.registry.Persona(name)
		counts := &PersonaCounts{}
		stats.Personas[name] = counts

		if err := l.processPersona(persona, currentWake, counts); err != nil {
			counts.Error = err.Error()
			debugLog.Errorf("lifecycle pass for persona %s aborted: %v", name, err)
			continue
		}

		// The algorithm cannot leave a tier over capacity; if it did, that
		// is a defect to surface, not tolerate.
		if err := l.checkCapacity(persona); err != nil {
			counts.Error = err.Error()
			debugLog.Errorf("capacity invariant violated: %v", err)
		}
	}

	if err := l.audit(stats); err != nil {
		debugLog.Warnf("lifecycle audit write failed: %v", err)
	}
	return stats, nil
}

func (l *Lifecycle) processPersona(p *Persona, wake int64, counts *PersonaCounts) error {
	if err := l.processShortTerm(p, wake, counts); err != nil {
		return err
	}
	return l.processLongTerm(p, wake, counts)
}

// processShortTerm purges stale entries, promotes entries that are both old
// enough and accessed enough, then enforces the short-term capacity by
// purging the least recently accessed survivors.
func (l *Lifecycle) processShortTerm(p *Persona, wake int64, counts *PersonaCounts) error {
	for _, entry := range p.Short.All() {
		idle := wake - entry.LastAccessedWake
		age := wake - entry.CreatedWake

		switch {
		case idle > int64(l.cfg.ShortPurgeThreshold):
			if err := p.Short.Remove(entry.ID); err != nil {
				return fmt.Errorf("purge %s: %w", entry.ID, err)
			}
			counts.Purged++

		case age >= int64(l.cfg.ShortPromoteMinAge) && entry.AccessCount >= l.cfg.ShortPromoteMinAccess:
			// Promotion moves the entry verbatim: all metadata, including
			// access history, survives the tier change.
			if err := p.Long.Add(entry); err != nil {
				return fmt.Errorf("promote %s: %w", entry.ID, err)
			}
			if err := p.Short.Remove(entry.ID); err != nil {
				return fmt.Errorf("promote (remove) %s: %w", entry.ID, err)
			}
			counts.Promoted++
		}
	}

	for p.Short.Count() > p.cfg.ShortCapacity {
		oldest := oldestAccessed(p.Short.All())
		if oldest == nil {
			break
		}
		if err := p.Short.Remove(oldest.ID); err != nil {
			return fmt.Errorf("capacity purge %s: %w", oldest.ID, err)
		}
		counts.CapacityEvicted++
	}
	return nil
}

// processLongTerm archives stale entries, then enforces the long-term
// capacity by archiving the least recently accessed survivors. Long-term
// overflow archives rather than purges: the content ages into cold storage
// instead of being destroyed.
func (l *Lifecycle) processLongTerm(p *Persona, wake int64, counts *PersonaCounts) error {
	archive := l.registry.Archive()

	for _, entry := range p.Long.All() {
		idle := wake - entry.LastAccessedWake
		if idle <= int64(l.cfg.LongArchiveThreshold) {
			continue
		}
		if err := archive.Append(snapshot(entry, TierLong, wake)); err != nil {
			return fmt.Errorf("archive %s: %w", entry.ID, err)
		}
		if err := p.Long.Remove(entry.ID); err != nil {
			return fmt.Errorf("archive (remove) %s: %w", entry.ID, err)
		}
		counts.Archived++
	}

	for p.Long.Count() > p.cfg.LongCapacity {
		oldest := oldestAccessed(p.Long.All())
		if oldest == nil {
			break
		}
		if err := archive.Append(snapshot(oldest, TierLong, wake)); err != nil {
			return fmt.Errorf("capacity archive %s: %w", oldest.ID, err)
		}
		if err := p.Long.Remove(oldest.ID); err != nil {
			return fmt.Errorf("capacity archive (remove) %s: %w", oldest.ID, err)
		}
		counts.CapacityEvicted++
	}
	return nil
}

// oldestAccessed returns the entry with the smallest last-accessed wake.
// Ties break toward the smaller ID; ULIDs are creation-ordered, so among
// equally stale entries the oldest-created one is evicted first.
func oldestAccessed(entries []*Entry) *Entry {
	var oldest *Entry
	for _, e := range entries {
		if oldest == nil ||
			e.LastAccessedWake < oldest.LastAccessedWake ||
			(e.LastAccessedWake == oldest.LastAccessedWake && e.ID < oldest.ID) {
			oldest = e
		}
	}
	return oldest
}

func (l *Lifecycle) checkCapacity(p *Persona) error {
	if p.Short.Count() > p.cfg.ShortCapacity {
		return fmt.Errorf("memory: persona %s short-term over capacity after pass: %d > %d",
			p.Name, p.Short.Count(), p.cfg.ShortCapacity)
	}
	if p.Long.Count() > p.cfg.LongCapacity {
		return fmt.Errorf("memory: persona %s long-term over capacity after pass: %d > %d",
			p.Name, p.Long.Count(), p.cfg.LongCapacity)
	}
	return nil
}

// audit appends one JSON line per pass to the lifecycle log.
func (l *Lifecycle) audit(stats *PassStats) error {
	if err := os.MkdirAll(filepath.Dir(l.auditPath), 0o750); err != nil {
		return err
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(l.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(append(b, '\n'))
	return err
}

// ForcePromote moves an entry from short-term to long-term immediately,
// bypassing the age and access thresholds.
func (l *Lifecycle) ForcePromote(personaName, id string) error {
	p := l.registry.Persona(personaName)
	if p == nil {
		return fmt.Errorf("memory: unknown persona %q", personaName)
	}
	entry := p.Short.Get(id)
	if entry == nil {
		return fmt.Errorf("memory: entry %s not found in %s short-term", id, personaName)
	}
	if err := p.Long.Add(entry); err != nil {
		return err
	}
	return p.Short.Remove(id)
}

// ForceArchive moves a long-term entry to the archive immediately,
// bypassing the idle threshold.
func (l *Lifecycle) ForceArchive(personaName, id string, currentWake int64) error {
	p := l.registry.Persona(personaName)
	if p == nil {
		return fmt.Errorf("memory: unknown persona %q", personaName)
	}
	entry := p.Long.Get(id)
	if entry == nil {
		return fmt.Errorf("memory: entry %s not found in %s long-term", id, personaName)
	}
	if err := l.registry.Archive().Append(snapshot(entry, TierLong, currentWake)); err != nil {
		return err
	}
	return p.Long.Remove(id)
}

// Restore copies an archived record back into the persona's long-term
// tier. This is a manual override only: no lifecycle rule ever rehydrates
// the archive, and the archive record itself is left in place (the archive
// is append-only).
func (l *Lifecycle) Restore(personaName, id string, currentWake int64) error {
	p := l.registry.Persona(personaName)
	if p == nil {
		return fmt.Errorf("memory: unknown persona %q", personaName)
	}
	record, err := l.registry.Archive().Find(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("memory: entry %s not found in archive", id)
	}
	entry := &Entry{
		ID:               record.ID,
		Content:          record.Content,
		Origin:           record.Origin,
		Persona:          personaName,
		Kind:             record.Kind,
		Lineage:          record.Lineage,
		CreatedWake:      record.CreatedWake,
		LastAccessedWake: currentWake,
		AccessCount:      record.AccessCount + 1,
	}
	if entry.LastAccessedWake < entry.CreatedWake {
		entry.LastAccessedWake = entry.CreatedWake
	}
	return p.Long.Add(entry)
}
