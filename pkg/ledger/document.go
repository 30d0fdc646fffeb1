package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/limaJavier/coursetable/pkg/model"
)

// document is the JSON layout shared by the file and Redis stores: occupied slots per kind, room and day,
// plus the owner of each cell. Documents without owners are attributed to the main scope.
type document struct {
	Version      int64                       `json:"version"`
	Theory       map[string]map[string][]int `json:"theory"`
	Lab          map[string]map[string][]int `json:"lab"`
	Owners       map[string]Entry            `json:"owners,omitempty"`
	Fingerprints map[string]string           `json:"fingerprints,omitempty"`
}

func ownerKey(key Key) string {
	return fmt.Sprintf("%v|%v|%v|%d", key.Kind, key.Room, key.Day, key.Slot)
}

func encode(ledger Ledger) ([]byte, error) {
	doc := document{
		Version:      ledger.Version,
		Theory:       make(map[string]map[string][]int),
		Lab:          make(map[string]map[string][]int),
		Owners:       make(map[string]Entry, len(ledger.Entries)),
		Fingerprints: ledger.Fingerprints,
	}
	for _, key := range ledger.Keys() {
		rooms := doc.Theory
		if key.Kind == model.Lab {
			rooms = doc.Lab
		}
		if rooms[key.Room] == nil {
			rooms[key.Room] = make(map[string][]int)
		}
		day := key.Day.String()
		rooms[key.Room][day] = append(rooms[key.Room][day], key.Slot)
		doc.Owners[ownerKey(key)] = ledger.Entries[key]
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) (Ledger, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Ledger{}, fmt.Errorf("parse ledger document: %w", err)
	}

	ledger := New()
	ledger.Version = doc.Version
	for scope, fingerprint := range doc.Fingerprints {
		ledger.Fingerprints[scope] = fingerprint
	}
	for kind, rooms := range map[model.Kind]map[string]map[string][]int{model.Theory: doc.Theory, model.Lab: doc.Lab} {
		for room, days := range rooms {
			for dayName, slots := range days {
				var day model.Day
				if err := day.UnmarshalText([]byte(dayName)); err != nil {
					// Some writers store days as their index
					index, convErr := strconv.Atoi(strings.TrimSpace(dayName))
					if convErr != nil {
						return Ledger{}, fmt.Errorf("ledger document: %w", err)
					}
					day = model.Day(index)
				}
				for _, slot := range slices.Compact(slices.Sorted(slices.Values(slots))) {
					key := Key{Kind: kind, Room: room, Day: day, Slot: slot}
					entry, ok := doc.Owners[ownerKey(key)]
					if !ok {
						entry = Entry{Scope: ScopeMain}
					}
					ledger.Entries[key] = entry
				}
			}
		}
	}
	return ledger, nil
}
