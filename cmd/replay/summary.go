package main

import (
	"fmt"
	"sort"
	"strings"

	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/protocol"
)

type Summary struct {
	Events   int
	OK       int
	Failed   int
	ByTag    map[string]int
	Final    protocol.Position
	Distance float64
	// OffMap counts events whose position is not a known cell. Only set
	// when a height index is supplied.
	OffMap int
}

// Summarize tallies a run's events. Distance is the horizontal Manhattan
// distance covered between consecutive positions.
func Summarize(evs []protocol.GameEvent, idx *heightmap.Index) Summary {
	s := Summary{ByTag: map[string]int{}}
	for i, ev := range evs {
		s.Events++
		if ev.Status.OK() {
			s.OK++
		} else {
			s.Failed++
		}
		s.ByTag[ev.Instruction.Tag()]++
		if i > 0 {
			p := evs[i-1].Position
			s.Distance += abs(ev.Position.X-p.X) + abs(ev.Position.Z-p.Z)
		}
		if idx != nil {
			if _, ok := idx.Query(ev.Position.Horizontal()); !ok {
				s.OffMap++
			}
		}
		s.Final = ev.Position
	}
	return s
}

func (s Summary) String() string {
	tags := make([]string, 0, len(s.ByTag))
	for t := range s.ByTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, fmt.Sprintf("%s=%d", t, s.ByTag[t]))
	}
	return fmt.Sprintf("events=%d ok=%d failed=%d [%s] distance=%g final=(%g,%g,%g) off_map=%d",
		s.Events, s.OK, s.Failed, strings.Join(parts, " "), s.Distance, s.Final.X, s.Final.Y, s.Final.Z, s.OffMap)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
