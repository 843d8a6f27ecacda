package analytics

import (
	"sort"
	"time"

	"climatedash/api/models"
)

const (
	topInteractionsLimit = 5
	tabSequencesLimit    = 10
)

func avgSessionDuration(sessions []models.Session) *float64 {
	var total float64
	var n int
	for i := range sessions {
		d, ok := sessions[i].Duration()
		if !ok {
			continue
		}
		total += d
		n++
	}
	return mean(total, n)
}

// bounceRate is the percentage of sessions with page views that have
// exactly one. Sessions without page views are not counted.
func bounceRate(views []models.PageView) *float64 {
	perSession := make(map[string]int)
	for _, pv := range views {
		perSession[pv.SessionID]++
	}
	if len(perSession) == 0 {
		return nil
	}

	var bounces int
	for _, n := range perSession {
		if n == 1 {
			bounces++
		}
	}
	rate := 100 * float64(bounces) / float64(len(perSession))
	return &rate
}

func avgTimePerPage(views []models.PageView, since *time.Time) *float64 {
	var total float64
	var n int
	for _, pv := range views {
		if since != nil && pv.ViewTime.Before(*since) {
			continue
		}
		total += pv.TimeSpent
		n++
	}
	return mean(total, n)
}

func topInteractions(interactions []models.Interaction, limit int) []models.InteractionCount {
	counts := make(map[string]int)
	for _, in := range interactions {
		counts[in.InteractionType]++
	}

	var out []models.InteractionCount
	for t, c := range counts {
		out = append(out, models.InteractionCount{InteractionType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].InteractionType < out[j].InteractionType
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type tabAccumulator struct {
	visits   int
	spent    float64
	timed    int
	visitors map[string]struct{}
}

func tabMetrics(tabs []models.Interaction) []models.TabMetric {
	acc := make(map[string]*tabAccumulator)
	for _, in := range tabs {
		a, ok := acc[in.ElementID]
		if !ok {
			a = &tabAccumulator{visitors: make(map[string]struct{})}
			acc[in.ElementID] = a
		}
		a.visits++
		a.visitors[in.SessionID] = struct{}{}
		if in.TimeSpent != nil {
			a.spent += *in.TimeSpent
			a.timed++
		}
	}

	var out []models.TabMetric
	for name, a := range acc {
		out = append(out, models.TabMetric{
			TabName:        name,
			VisitCount:     a.visits,
			AvgTimeSpent:   mean(a.spent, a.timed),
			UniqueVisitors: len(a.visitors),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitCount != out[j].VisitCount {
			return out[i].VisitCount > out[j].VisitCount
		}
		return out[i].TabName < out[j].TabName
	})
	return out
}

type tabPair struct {
	previous string
	current  string
}

// tabSequences counts consecutive tab pairs within each session. The first
// tab of a session has no predecessor and yields no pair.
func tabSequences(tabs []models.Interaction, limit int) []models.TabTransition {
	ordered := make([]models.Interaction, len(tabs))
	copy(ordered, tabs)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if !a.InteractionTime.Equal(b.InteractionTime) {
			return a.InteractionTime.Before(b.InteractionTime)
		}
		return a.ID < b.ID
	})

	counts := make(map[tabPair]int)
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.SessionID != cur.SessionID {
			continue
		}
		counts[tabPair{previous: prev.ElementID, current: cur.ElementID}]++
	}

	var out []models.TabTransition
	for p, c := range counts {
		out = append(out, models.TabTransition{
			PreviousTab:     p.previous,
			CurrentTab:      p.current,
			TransitionCount: c,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TransitionCount != b.TransitionCount {
			return a.TransitionCount > b.TransitionCount
		}
		if a.PreviousTab != b.PreviousTab {
			return a.PreviousTab < b.PreviousTab
		}
		return a.CurrentTab < b.CurrentTab
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tabSwitches(interactions []models.Interaction) []models.Interaction {
	var tabs []models.Interaction
	for _, in := range interactions {
		if in.InteractionType == models.InteractionTabSwitch {
			tabs = append(tabs, in)
		}
	}
	return tabs
}

func mean(total float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := total / float64(n)
	return &v
}
