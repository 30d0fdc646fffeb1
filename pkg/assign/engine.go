package assign

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/coursetable/pkg/metrics"
	"github.com/limaJavier/coursetable/pkg/model"
)

type Status string

const (
	StatusOK              Status = "ok"
	StatusNothingToAssign Status = "nothing_to_assign"
	StatusNoPreferences   Status = "no_preferences"
)

// A preference owns sections × unitsPerSection units; theory sessions cost one unit and labs two.
const (
	unitsPerSection = 2
	theoryCost      = 1
	labCost         = 2
)

type Options struct {
	// ClearExisting drops the teachers already set on the sessions before assigning
	ClearExisting bool
}

type Workload struct {
	Teacher  string `json:"teacher"`
	Sessions int    `json:"sessions"`
	Units    int    `json:"units"`
	Budget   int    `json:"budget"`
}

// Result lists every session left without a teacher; partial coverage is never hidden.
type Result struct {
	Status             Status                    `json:"status"`
	TeacherAssignments []model.TeacherAssignment `json:"teacherAssignments"`
	Unassigned         []model.Assignment        `json:"unassigned"`
	AssignedCount      int                       `json:"assignedCount"`
	UnassignedCount    int                       `json:"unassignedCount"`
	Workloads          []Workload                `json:"workloads"`
	Warnings           []string                  `json:"warnings"`
}

type Engine struct {
	logger   *zap.Logger
	recorder *metrics.Recorder
}

func NewEngine(logger *zap.Logger, recorder *metrics.Recorder) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, recorder: recorder}
}

// pool is the remaining budget of one preference.
type pool struct {
	preference model.TeacherPreference
	remaining  int
}

type holding struct {
	teacher, section, subject string
}

// state tracks what every teacher already holds during one run.
type state struct {
	busy     map[string][]model.Assignment
	holds    map[holding]bool
	sessions map[string]int
	units    map[string]int
}

func (s *state) free(teacher string, session model.Assignment) bool {
	return !lo.ContainsBy(s.busy[teacher], func(other model.Assignment) bool { return other.Clashes(session) })
}

func (s *state) take(teacher string, session model.Assignment) {
	s.busy[teacher] = append(s.busy[teacher], session)
	s.holds[holding{teacher, session.Section, session.Subject}] = true
	s.sessions[teacher]++
	s.units[teacher] += cost(session.Kind)
}

func cost(kind model.Kind) int {
	if kind == model.Lab {
		return labCost
	}
	return theoryCost
}

// Assign gives teachers to the sessions that lack one. Tiers run from most to least specific and each
// tier is exhausted before the next starts.
func (engine *Engine) Assign(assignments []model.Assignment, preferences []model.TeacherPreference, options Options) (Result, error) {
	sessions := slices.Clone(assignments)
	if options.ClearExisting {
		for i := range sessions {
			sessions[i].Teacher = ""
		}
	}

	if len(sessions) == 0 {
		engine.logger.Info("no timetable to assign teachers to")
		engine.recorder.ObserveAssignment(string(StatusNothingToAssign), 0, 0)
		return Result{Status: StatusNothingToAssign}, nil
	}

	pending := lo.Filter(sessions, func(session model.Assignment, _ int) bool { return session.Teacher == "" })
	slices.SortStableFunc(pending, compareSessions)

	if len(preferences) == 0 {
		engine.logger.Info("no teacher preferences", zap.Int("pending", len(pending)))
		engine.recorder.ObserveAssignment(string(StatusNoPreferences), 0, len(pending))
		return Result{
			Status:          StatusNoPreferences,
			Unassigned:      pending,
			UnassignedCount: len(pending),
			Warnings:        []string{"no teacher preferences supplied"},
		}, nil
	}
	if len(pending) == 0 {
		engine.logger.Info("every session already has a teacher")
		engine.recorder.ObserveAssignment(string(StatusNothingToAssign), 0, 0)
		return Result{Status: StatusNothingToAssign}, nil
	}

	//** Budgets, in tier and preference order
	pools := lo.Map(preferences, func(preference model.TeacherPreference, _ int) *pool {
		return &pool{preference: preference, remaining: preference.Sections * unitsPerSection}
	})
	slices.SortStableFunc(pools, func(a, b *pool) int {
		return cmp.Or(
			cmp.Compare(a.preference.Tier(), b.preference.Tier()),
			cmp.Compare(a.preference.Priority, b.preference.Priority),
			cmp.Compare(a.preference.Course.Code, b.preference.Course.Code),
			cmp.Compare(a.preference.Teacher, b.preference.Teacher),
		)
	})

	current := &state{
		busy:     make(map[string][]model.Assignment),
		holds:    make(map[holding]bool),
		sessions: make(map[string]int),
		units:    make(map[string]int),
	}

	//** Existing teachers keep their sessions and use up their budgets
	for _, session := range sessions {
		if session.Teacher == "" {
			continue
		}
		current.take(session.Teacher, session)
		if charged, ok := lo.Find(pools, func(candidate *pool) bool {
			return candidate.preference.Teacher == session.Teacher && matches(candidate.preference, session) && candidate.remaining >= cost(session.Kind)
		}); ok {
			charged.remaining -= cost(session.Kind)
		}
	}

	//** Tiered matching
	assigned := make(map[int]bool)
	teacherAssignments := make([]model.TeacherAssignment, 0, len(pending))
	for tier := 1; tier <= 4; tier++ {
		tierPools := lo.Filter(pools, func(candidate *pool, _ int) bool { return candidate.preference.Tier() == tier })
		if len(tierPools) == 0 {
			continue
		}
		for index, session := range pending {
			if assigned[index] {
				continue
			}
			candidates := lo.Filter(tierPools, func(candidate *pool, _ int) bool {
				return matches(candidate.preference, session) &&
					candidate.remaining >= cost(session.Kind) &&
					current.free(candidate.preference.Teacher, session)
			})
			if len(candidates) == 0 {
				continue
			}

			// Continuity: a teacher already holding this section's subject keeps it
			chosen, ok := lo.Find(candidates, func(candidate *pool) bool {
				return current.holds[holding{candidate.preference.Teacher, session.Section, session.Subject}]
			})
			if !ok {
				chosen = candidates[0]
			}

			teacher := chosen.preference.Teacher
			chosen.remaining -= cost(session.Kind)
			current.take(teacher, session)
			assigned[index] = true
			teacherAssignments = append(teacherAssignments, model.TeacherAssignment{
				AssignmentID: session.ID,
				Teacher:      teacher,
				Section:      session.Section,
				Subject:      session.Subject,
				Kind:         session.Kind,
				Day:          session.Day,
				Slot:         session.Slot,
				Tier:         tier,
			})
		}
	}

	unassigned := lo.Filter(pending, func(_ model.Assignment, index int) bool { return !assigned[index] })
	result := Result{
		Status:             StatusOK,
		TeacherAssignments: teacherAssignments,
		Unassigned:         unassigned,
		AssignedCount:      len(teacherAssignments),
		UnassignedCount:    len(unassigned),
		Workloads:          workloads(pools, current),
	}

	//** Warnings
	for _, workload := range result.Workloads {
		if workload.Budget > 0 && lo.EveryBy(pools, func(candidate *pool) bool {
			return candidate.preference.Teacher != workload.Teacher || candidate.remaining < theoryCost
		}) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%v: budget of %d units fully used (%d sessions)", workload.Teacher, workload.Budget, workload.Sessions))
		}
	}
	if len(unassigned) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d sessions remain unassigned (no matching teacher)", len(unassigned)))
	}

	engine.recorder.ObserveAssignment(string(result.Status), result.AssignedCount, result.UnassignedCount)
	engine.logger.Info("teachers assigned",
		zap.Int("assigned", result.AssignedCount),
		zap.Int("unassigned", result.UnassignedCount),
		zap.Int("teachers", len(result.Workloads)),
	)
	for _, warning := range result.Warnings {
		engine.logger.Warn(warning)
	}
	return result, nil
}

func matches(preference model.TeacherPreference, session model.Assignment) bool {
	return preference.Course.Matches(session.Subject) && preference.Type.Matches(session.Kind)
}

func compareSessions(a, b model.Assignment) int {
	return cmp.Or(
		cmp.Compare(a.Section, b.Section),
		cmp.Compare(a.Subject, b.Subject),
		cmp.Compare(a.Day, b.Day),
		cmp.Compare(a.Start, b.Start),
	)
}

func workloads(pools []*pool, current *state) []Workload {
	budgets := make(map[string]int)
	for _, candidate := range pools {
		budgets[candidate.preference.Teacher] += candidate.preference.Sections * unitsPerSection
	}
	teachers := lo.Union(lo.Keys(budgets), lo.Keys(current.sessions))
	slices.Sort(teachers)

	return lo.Map(teachers, func(teacher string, _ int) Workload {
		return Workload{
			Teacher:  teacher,
			Sessions: current.sessions[teacher],
			Units:    current.units[teacher],
			Budget:   budgets[teacher],
		}
	})
}
