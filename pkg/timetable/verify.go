package timetable

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/compiler"
	"github.com/limaJavier/coursetable/pkg/config"
	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
)

// verification re-checks a decoded timetable against the records it was built from, without
// looking at the compiled problem.
type verification struct {
	input        model.Input
	config       config.Configuration
	requirements []model.Requirement // nil skips the completeness check
	occupancy    compiler.Occupancy  // nil skips the ledger check
	electives    bool
}

const reportedViolations = 5

func (check verification) run(assignments []model.Assignment) error {
	violations := check.violations(assignments)
	if len(violations) == 0 {
		return nil
	}
	message := strings.Join(violations[:min(len(violations), reportedViolations)], "; ")
	if len(violations) > reportedViolations {
		message += fmt.Sprintf("; and %d more", len(violations)-reportedViolations)
	}
	return appErrors.Clone(appErrors.ErrVerification, appErrors.ErrVerification.Message+": "+message)
}

func (check verification) violations(assignments []model.Assignment) []string {
	grid := check.input.Grid
	if grid.IsZero() {
		grid = model.DefaultGrid()
	}
	rooms := lo.KeyBy(check.input.Rooms, func(room model.Room) string { return room.ID })
	subjects := lo.KeyBy(check.input.Subjects, func(subject model.Subject) string { return subject.Code })
	cohorts := lo.KeyBy(check.input.Cohorts, func(offering model.CohortOffering) string { return offering.Label })
	capacities := lo.SliceToMap(check.input.Sections, func(section model.Section) (string, int) { return section.Name, section.Capacity })
	for _, requirement := range check.requirements {
		capacities[requirement.Section] = requirement.Capacity
	}

	violations := make([]string, 0)
	report := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	//** Per session
	for _, assignment := range assignments {
		slot := fmt.Sprintf("%v %v#%d", assignment.Day, assignment.Kind, assignment.Slot)

		if int(assignment.Day) >= check.config.WorkingDaysPerWeek {
			report("%v held on non-working day %v", assignment.Subject, assignment.Day)
		}
		if assignment.Day == model.Friday && assignment.Slot == model.FridayBreakSlot {
			report("%v:%v held in the Friday break", assignment.Section, assignment.Subject)
		}
		if assignment.Slot < 0 || assignment.Slot >= len(grid.Windows(assignment.Kind)) || !grid.Usable(assignment.Day, assignment.Slot) {
			report("%v:%v held at unusable slot %v", assignment.Section, assignment.Subject, slot)
			continue
		}
		window := grid.Window(assignment.Kind, assignment.Slot)
		if assignment.Window() != window {
			report("%v:%v window %v does not match slot %v", assignment.Section, assignment.Subject, assignment.Window(), slot)
		}
		if window.Start < check.config.EarliestStartHour*60 || window.End > check.config.NoClassesAfterHour*60 {
			report("%v:%v at %v is outside the teaching hours", assignment.Section, assignment.Subject, slot)
		}

		if assignment.Cohort != "" {
			offering, ok := cohorts[assignment.Cohort]
			if !ok || offering.Subject != assignment.Subject || offering.Day != assignment.Day || offering.Slot != assignment.Slot {
				report("%v:%v does not follow cohort offering %v", assignment.Section, assignment.Subject, assignment.Cohort)
			}
			continue
		}

		room, ok := rooms[assignment.Room]
		if !ok {
			report("%v:%v has unknown room %q", assignment.Section, assignment.Subject, assignment.Room)
			continue
		}
		if room.Kind != assignment.Kind {
			report("%v:%v is a %v session in %v room %v", assignment.Section, assignment.Subject, assignment.Kind, room.Kind, room.ID)
		}
		if capacity, ok := capacities[assignment.Section]; ok && room.Capacity < capacity {
			report("room %v seats %d, section %v needs %d", room.ID, room.Capacity, assignment.Section, capacity)
		}
		if subject, ok := subjects[assignment.Subject]; ok && !check.electives && len(subject.Rooms) > 0 && !slices.Contains(subject.Rooms, room.ID) {
			report("%v held in %v outside its room whitelist", assignment.Subject, room.ID)
		}
		if check.occupancy != nil && check.occupancy.Occupied(assignment.Usage()) {
			report("cell %v is already held in the usage ledger", assignment.Usage())
		}
	}

	//** Rooms
	holders := make(map[model.Usage]model.Assignment)
	for _, assignment := range assignments {
		if assignment.Cohort != "" {
			continue
		}
		if other, ok := holders[assignment.Usage()]; ok {
			report("%v double-booked by %v:%v and %v:%v", assignment.Usage(), other.Section, other.Subject, assignment.Section, assignment.Subject)
		}
		holders[assignment.Usage()] = assignment
	}

	//** Cohort offerings
	seats := max(1, check.config.SectionSeats)
	for label, held := range lo.CountValuesBy(lo.Filter(assignments, func(assignment model.Assignment, _ int) bool { return assignment.Cohort != "" }),
		func(assignment model.Assignment) string { return assignment.Cohort }) {
		if offering, ok := cohorts[label]; ok && held > offering.Capacity/seats {
			report("cohort offering %v seats %d sections, %d assigned", label, offering.Capacity/seats, held)
		}
	}

	//** Sections
	theoryCap := check.config.MaxHoursPerDay * 60 / max(1, grid.LongestMinutes(model.Theory))
	spread := check.electives || !check.config.AllowSubjectOnConsecutiveDays
	for section, held := range lo.GroupBy(assignments, func(assignment model.Assignment) string { return assignment.Section }) {
		for i, a := range held {
			for _, b := range held[i+1:] {
				switch {
				case a.Clashes(b):
					report("section %v holds %v and %v at the same time on %v", section, a.Subject, b.Subject, a.Day)
				case a.Day != b.Day:
				case a.Subject == b.Subject && (check.electives || !check.config.AllowSameSubjectTwicePerDay):
					report("section %v holds %v twice on %v", section, a.Subject, a.Day)
				}
				if spread && a.Subject == b.Subject && a.Kind == model.Theory && b.Kind == model.Theory &&
					a.Cohort == "" && b.Cohort == "" && (a.Day-b.Day == 1 || b.Day-a.Day == 1) {
					report("section %v holds %v on adjacent days %v and %v", section, a.Subject, a.Day, b.Day)
				}
				if check.electives || a.Day != b.Day || a.Clashes(b) {
					continue
				}
				if !check.config.AllowConsecutiveLabs && a.Kind == model.Lab && b.Kind == model.Lab && (a.Slot-b.Slot == 1 || b.Slot-a.Slot == 1) {
					report("section %v holds consecutive labs on %v", section, a.Day)
				}
				if gap := max(a.Start, b.Start) - min(a.End, b.End); gap < check.config.MinGapMinutes {
					report("section %v has a %d minute gap on %v", section, gap, a.Day)
				}
				if span := max(a.End, b.End) - min(a.Start, b.Start); span > check.config.DaySpanMinutes() {
					report("section %v spans %d minutes on %v", section, span, a.Day)
				}
			}
		}

		if check.electives {
			continue
		}
		for day, sessions := range lo.GroupBy(held, func(assignment model.Assignment) model.Day { return assignment.Day }) {
			if labs := lo.CountBy(sessions, func(assignment model.Assignment) bool { return assignment.Kind == model.Lab }); labs > check.config.MaxLabsPerDay {
				report("section %v holds %d labs on %v", section, labs, day)
			}
			if theory := lo.CountBy(sessions, func(assignment model.Assignment) bool { return assignment.Kind == model.Theory }); theory > theoryCap {
				report("section %v holds %d theory sessions on %v", section, theory, day)
			}
		}
	}

	//** Completeness
	if check.requirements != nil {
		type demand struct{ section, subject string }
		type family struct {
			demand
			kind model.Kind
		}
		fixed, alternatives := lo.FilterReject(check.requirements, func(requirement model.Requirement, _ int) bool { return !requirement.Alternative })
		needed := lo.CountValuesBy(fixed, func(requirement model.Requirement) demand {
			return demand{requirement.Section, requirement.Subject}
		})
		held := lo.CountValuesBy(assignments, func(assignment model.Assignment) demand {
			return demand{assignment.Section, assignment.Subject}
		})
		for key, count := range needed {
			if held[key] != count {
				report("section %v needs %d %v sessions, holds %d", key.section, count, key.subject, held[key])
			}
		}

		// An alternative subject holds one kind family in full and nothing of the other
		families := lo.CountValuesBy(alternatives, func(requirement model.Requirement) family {
			return family{demand{requirement.Section, requirement.Subject}, requirement.Kind}
		})
		heldFamilies := lo.CountValuesBy(assignments, func(assignment model.Assignment) family {
			return family{demand{assignment.Section, assignment.Subject}, assignment.Kind}
		})
		for _, key := range lo.Uniq(lo.Map(alternatives, func(requirement model.Requirement, _ int) demand {
			return demand{requirement.Section, requirement.Subject}
		})) {
			needed[key] = 0
			satisfied := lo.ContainsBy(model.Kinds, func(kind model.Kind) bool {
				count := families[family{key, kind}]
				return count > 0 && heldFamilies[family{key, kind}] == count && held[key] == count
			})
			if !satisfied {
				report("section %v needs %d theory or %d lab %v sessions, holds %d and %d", key.section,
					families[family{key, model.Theory}], families[family{key, model.Lab}], key.subject,
					heldFamilies[family{key, model.Theory}], heldFamilies[family{key, model.Lab}])
			}
		}

		for key := range held {
			if _, ok := needed[key]; !ok {
				report("section %v holds unrequested subject %v", key.section, key.subject)
			}
		}
	}

	slices.Sort(violations)
	return violations
}
