package booking

import (
	"fmt"
	"sort"

	"github.com/example/court-scheduler/internal/clubspark"
	"github.com/example/court-scheduler/internal/config"
)

// Candidate is one bookable court at one start time, scored against the
// slot's preferences. Lower scores are better.
type Candidate struct {
	Score     int
	StartTime int // minutes since midnight
	Resource  clubspark.Resource
}

// timeWeight spaces time ranks above court ranks so that time preference
// always dominates: any court at a more preferred time beats every court at a
// less preferred one. It must exceed the largest possible court rank.
const timeWeight = 100

// Rank scores every available court against the slot's ordered time and court
// preferences and returns the survivors sorted best-first. Candidates whose
// start time or court is absent from the preference lists are discarded, not
// ranked last: only explicitly preferred slots are ever attempted. The sort is
// stable, so input order breaks score ties.
func Rank(times []clubspark.TimeSlot, slot config.Slot) []Candidate {
	prefTimes := make([]int, 0, len(slot.TargetTimes))
	for _, t := range slot.TargetTimes {
		m, err := config.ParseClock(t)
		if err != nil {
			continue // config validation rejects these before we get here
		}
		prefTimes = append(prefTimes, m)
	}
	prefCourts := make([]string, 0, len(slot.TargetCourts))
	for _, n := range slot.TargetCourts {
		prefCourts = append(prefCourts, fmt.Sprintf("Court %d", n))
	}

	var out []Candidate
	for _, ts := range times {
		timeRank, ok := indexOf(ts.Time, prefTimes)
		if !ok {
			continue
		}
		for _, r := range ts.Resources {
			courtRank, ok := indexOf(r.Name, prefCourts)
			if !ok {
				continue
			}
			out = append(out, Candidate{
				Score:     timeWeight*timeRank + courtRank,
				StartTime: ts.Time,
				Resource:  r,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func indexOf[T comparable](v T, list []T) (int, bool) {
	for i, x := range list {
		if x == v {
			return i, true
		}
	}
	return 0, false
}
