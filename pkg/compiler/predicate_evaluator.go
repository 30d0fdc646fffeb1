package compiler

import (
	"slices"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
)

type predicateEvaluator interface {
	// Checks whether the requirement may be held at the given day and slot (grid, business rules, hour window, day span)
	Allowed(requirement, day, slot uint64) bool

	// Checks whether the room may host the requirement (kind, whitelist, special reservation, capacity)
	Eligible(requirement, room uint64) bool

	// Checks whether the room is not already occupied at the given day and slot
	Free(room, day, slot uint64) bool
}

type predicateEvaluatorStandard struct {
	grid         model.Grid
	config       config.Configuration
	requirements []model.Requirement
	subjects     map[string]model.Subject
	rooms        []model.Room
	reserved     map[string]bool // Rooms on some special whitelist
	occupancy    Occupancy
}

func newPredicateEvaluator(
	grid model.Grid,
	configuration config.Configuration,
	requirements []model.Requirement,
	subjects map[string]model.Subject,
	reserved map[string]bool,
	rooms []model.Room,
	occupancy Occupancy,
) predicateEvaluator {
	if !configuration.UseUsageLedger || occupancy == nil {
		occupancy = nothingOccupied{}
	}

	return &predicateEvaluatorStandard{
		grid:         grid,
		config:       configuration,
		requirements: requirements,
		subjects:     subjects,
		rooms:        rooms,
		reserved:     reserved,
		occupancy:    occupancy,
	}
}

func (evaluator *predicateEvaluatorStandard) Allowed(requirement, day, slot uint64) bool {
	kind := evaluator.requirements[requirement].Kind
	return slotAllowed(evaluator.grid, evaluator.config, model.Day(day), kind, int(slot))
}

func (evaluator *predicateEvaluatorStandard) Eligible(requirement, room uint64) bool {
	r := evaluator.requirements[requirement]
	candidate := evaluator.rooms[room]
	subject := evaluator.subjects[r.Subject]

	if candidate.Kind != r.Kind || candidate.Capacity < r.Capacity {
		return false
	}
	// Special subjects always carry a whitelist; ordinary ones may narrow their rooms too
	if len(subject.Rooms) > 0 {
		return slices.Contains(subject.Rooms, candidate.ID)
	}
	return !evaluator.reserved[candidate.ID]
}

func (evaluator *predicateEvaluatorStandard) Free(room, day, slot uint64) bool {
	candidate := evaluator.rooms[room]
	return !evaluator.occupancy.Occupied(model.Usage{Kind: candidate.Kind, Room: candidate.ID, Day: model.Day(day), Slot: int(slot)})
}

// slotAllowed applies the grid, the day-of-week rules, the working days, the hour window and the day span to a slot.
func slotAllowed(grid model.Grid, configuration config.Configuration, day model.Day, kind model.Kind, slot int) bool {
	windows := grid.Windows(kind)
	if slot < 0 || slot >= len(windows) || int(day) >= configuration.WorkingDaysPerWeek {
		return false
	}
	if !grid.Usable(day, slot) {
		return false
	}
	window := windows[slot]
	return window.Start >= configuration.EarliestStartHour*60 &&
		window.End <= configuration.NoClassesAfterHour*60 &&
		window.Minutes() <= configuration.DaySpanMinutes()
}

// reservedRooms collects every room on a special whitelist; ordinary subjects stay out of them.
func reservedRooms(subjects []model.Subject) map[string]bool {
	reserved := make(map[string]bool)
	for _, subject := range subjects {
		if subject.Special {
			for _, room := range subject.Rooms {
				reserved[room] = true
			}
		}
	}
	return reserved
}

type nothingOccupied struct{}

func (nothingOccupied) Occupied(model.Usage) bool {
	return false
}
