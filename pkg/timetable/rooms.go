package timetable

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"

	"github.com/limaJavier/coursetable/pkg/compiler"
	"github.com/limaJavier/coursetable/pkg/model"
)

type unassignableError struct {
	cell     model.TimeSlot
	sessions []string
}

func (err unassignableError) Error() string {
	return fmt.Sprintf("cannot match rooms at %v for %v", err.cell, strings.Join(err.sessions, ", "))
}

// roomAssignment fills the rooms of the sessions scheduled without one. Sessions sharing a (day, kind, slot)
// compete for the same rooms, so each such cell is solved as a maximum bipartite matching.
func roomAssignment(compilation *compiler.Compilation, selected []int, assignments []model.Assignment) error {
	simultaneous := make(map[model.TimeSlot][]int)
	for position, index := range selected {
		placement := compilation.Placements[index]
		if placement.Offering >= 0 {
			continue
		}
		cell := model.TimeSlot{Day: placement.Day, Kind: placement.Kind, Index: placement.Slot}
		simultaneous[cell] = append(simultaneous[cell], position)
	}

	cells := lo.Keys(simultaneous)
	slices.SortFunc(cells, func(a, b model.TimeSlot) int {
		return cmp.Or(cmp.Compare(a.Day, b.Day), cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Index, b.Index))
	})

	for _, cell := range cells {
		positions := simultaneous[cell]

		// Relationships between sessions and the rooms they may use
		relationships := make(map[[2]int]bool)
		rooms := make([]string, 0)
		for _, position := range positions {
			for _, room := range compilation.Placements[selected[position]].Rooms {
				if !slices.Contains(rooms, room) {
					rooms = append(rooms, room)
				}
				relationships[[2]int{position, slices.Index(rooms, room)}] = true
			}
		}

		matching, err := assignRooms(positions, len(rooms), relationships)
		if err != nil {
			return err
		}
		if matching == nil {
			return unassignableError{
				cell: cell,
				sessions: lo.Map(positions, func(position int, _ int) string {
					return assignments[position].Section + ":" + assignments[position].Subject
				}),
			}
		}
		for position, room := range matching {
			assignments[position].Room = rooms[room]
		}
	}
	return nil
}

// assignRooms returns room indices keyed by session position, or nil when not every session gets a room.
func assignRooms(positions []int, rooms int, relationships map[[2]int]bool) (map[int]int, error) {
	neighbors := func(positionAny any, roomAny any) (bool, error) {
		return relationships[[2]int{positionAny.(int), roomAny.(int)}], nil
	}

	positionsAny := lo.Map(positions, func(position int, _ int) any { return position })
	roomsAny := lo.Map(lo.Range(rooms), func(room int, _ int) any { return room })

	graph, err := bipartitegraph.NewBipartiteGraph(positionsAny, roomsAny, neighbors)
	if err != nil {
		return nil, err
	}

	matching := graph.LargestMatching()

	// Check the matching is a maximum one
	if len(matching) < len(positions) {
		return nil, nil
	}

	assignments := make(map[int]int, len(positions))
	for _, edge := range matching {
		assignments[positions[edge.Node1]] = edge.Node2 - len(positions)
	}
	return assignments, nil
}
