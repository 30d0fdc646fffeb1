package ledger

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/limaJavier/coursetable/pkg/model"
)

// Run scopes that own ledger entries
const (
	ScopeMain      = "main"
	ScopeElectives = "electives"
)

// Key is one (room, timeslot) cell.
type Key = model.Usage

// Entry tells which run scope committed a cell and for which session.
type Entry struct {
	Scope    string `json:"scope"`
	Occupant string `json:"occupant"`
}

// Ledger is the versioned set of committed cells. Version is the stored version the value was loaded at.
type Ledger struct {
	Version      int64
	Entries      map[Key]Entry
	Fingerprints map[string]string // Last committed run fingerprint per scope
}

// Store persists a ledger as a whole.
type Store interface {
	Load(ctx context.Context) (Ledger, error)
	// Save fails with ErrVersionConflict when the stored version is no longer ledger.Version;
	// on success the stored version becomes ledger.Version+1.
	Save(ctx context.Context, ledger Ledger) error
	// Reset empties the stored ledger.
	Reset(ctx context.Context) error
}

func New() Ledger {
	return Ledger{Entries: make(map[Key]Entry), Fingerprints: make(map[string]string)}
}

func (ledger Ledger) Occupied(usage model.Usage) bool {
	_, ok := ledger.Entries[usage]
	return ok
}

func (ledger Ledger) Fingerprint(scope string) string {
	return ledger.Fingerprints[scope]
}

// Count returns how many cells a scope holds.
func (ledger Ledger) Count(scope string) int {
	count := 0
	for _, entry := range ledger.Entries {
		if entry.Scope == scope {
			count++
		}
	}
	return count
}

// ClearScope drops every cell the scope committed together with its fingerprint.
func (ledger *Ledger) ClearScope(scope string) int {
	cleared := 0
	for key, entry := range ledger.Entries {
		if entry.Scope == scope {
			delete(ledger.Entries, key)
			cleared++
		}
	}
	delete(ledger.Fingerprints, scope)
	return cleared
}

// Commit records the rooms a feasible run occupies. Cohort sessions are held outside the room pool and are skipped.
// Cells already held are taken over by the new run; the displaced keys are returned.
func (ledger *Ledger) Commit(scope, fingerprint string, assignments []model.Assignment) []Key {
	if ledger.Entries == nil {
		ledger.Entries = make(map[Key]Entry)
	}
	if ledger.Fingerprints == nil {
		ledger.Fingerprints = make(map[string]string)
	}

	displaced := make([]Key, 0)
	for _, assignment := range assignments {
		if assignment.Cohort != "" || assignment.Room == "" {
			continue
		}
		key := assignment.Usage()
		if _, ok := ledger.Entries[key]; ok {
			displaced = append(displaced, key)
		}
		ledger.Entries[key] = Entry{Scope: scope, Occupant: occupant(assignment)}
	}
	ledger.Fingerprints[scope] = fingerprint
	return displaced
}

func (ledger Ledger) Clone() Ledger {
	clone := Ledger{Version: ledger.Version, Entries: maps.Clone(ledger.Entries), Fingerprints: maps.Clone(ledger.Fingerprints)}
	if clone.Entries == nil {
		clone.Entries = make(map[Key]Entry)
	}
	if clone.Fingerprints == nil {
		clone.Fingerprints = make(map[string]string)
	}
	return clone
}

// Keys returns the occupied cells sorted by kind, room, day and slot.
func (ledger Ledger) Keys() []Key {
	keys := slices.Collect(maps.Keys(ledger.Entries))
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b Key) int {
	return cmp.Or(
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Room, b.Room),
		cmp.Compare(a.Day, b.Day),
		cmp.Compare(a.Slot, b.Slot),
	)
}

func occupant(assignment model.Assignment) string {
	return assignment.Section + ":" + assignment.Subject
}
