package domain

import "sort"

// Cohort is the set of members announced by the relay at session start.
// It never changes once built.
type Cohort struct {
	ids map[MemberID]struct{}
}

// NewCohort builds a cohort from the relay's member list, skipping self and
// empty ids.
func NewCohort(self MemberID, ids []MemberID) Cohort {
	c := Cohort{ids: make(map[MemberID]struct{}, len(ids))}
	for _, id := range ids {
		if id == self || id.Validate() != nil {
			continue
		}
		c.ids[id] = struct{}{}
	}
	return c
}

func (c Cohort) Contains(id MemberID) bool {
	_, ok := c.ids[id]
	return ok
}

func (c Cohort) Len() int { return len(c.ids) }

// IDs returns the cohort members in a stable order.
func (c Cohort) IDs() []MemberID {
	out := make([]MemberID, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
