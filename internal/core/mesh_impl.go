package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Mesh is the membership set of one session plus its initial cohort.
// Only the session loop mutates it; reads are safe from any goroutine.
type Mesh struct {
	mu        sync.RWMutex
	cohort    domain.Cohort
	hasCohort bool
	members   map[domain.MemberID]*Member
}

func NewMesh() *Mesh {
	return &Mesh{members: make(map[domain.MemberID]*Member)}
}

// SetCohort fixes the initial cohort. Later calls are ignored and report false.
func (m *Mesh) SetCohort(c domain.Cohort) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasCohort {
		return false
	}
	m.cohort = c
	m.hasCohort = true
	log.Info().Str("module", "core.mesh").Int("cohort", c.Len()).Msg("initial cohort set")
	return true
}

func (m *Mesh) HasCohort() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasCohort
}

func (m *Mesh) InCohort(id domain.MemberID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cohort.Contains(id)
}

// Add creates a member in Negotiating. If the id is already known the
// existing member is returned with false.
func (m *Mesh) Add(id domain.MemberID, peer PeerConnection) (*Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[id]; ok {
		return mem, false
	}
	mem := NewMember(id, peer)
	mem.state = domain.Negotiating
	m.members[id] = mem
	log.Info().Str("module", "core.mesh").Str("member", string(id)).Msg("member added")
	return mem, true
}

func (m *Mesh) Get(id domain.MemberID) (*Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	return mem, ok
}

// Current reports whether mem is still the registered member for its id.
// Callbacks of a torn-down member must not touch its successor.
func (m *Mesh) Current(mem *Member) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mem != nil && m.members[mem.id] == mem
}

func (m *Mesh) State(id domain.MemberID) (domain.HandshakeState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return domain.Unconnected, false
	}
	return mem.state, true
}

// MarkOffered returns true exactly once per negotiating member.
func (m *Mesh) MarkOffered(mem *Member) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[mem.id] != mem || mem.state != domain.Negotiating || mem.offered {
		return false
	}
	mem.offered = true
	return true
}

// MarkDataReady records the open data channel. It reports false when the
// member is gone or already data-ready.
func (m *Mesh) MarkDataReady(mem *Member, dc DataChannel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[mem.id] != mem || mem.state != domain.Negotiating {
		return false
	}
	mem.data = dc
	mem.state = domain.DataReady
	log.Info().Str("module", "core.mesh").Str("member", string(mem.id)).Msg("member data ready")
	return true
}

// Remove drops the member and releases its handles.
func (m *Mesh) Remove(id domain.MemberID) (*Member, bool) {
	m.mu.Lock()
	mem, ok := m.members[id]
	delete(m.members, id)
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	mem.close()
	log.Info().Str("module", "core.mesh").Str("member", string(id)).Msg("member removed")
	return mem, true
}

// CloseAll removes every member and returns their ids.
func (m *Mesh) CloseAll() []domain.MemberID {
	m.mu.Lock()
	all := m.members
	m.members = make(map[domain.MemberID]*Member)
	m.mu.Unlock()

	ids := make([]domain.MemberID, 0, len(all))
	for id, mem := range all {
		mem.close()
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// ComputeReady is true iff every cohort member is either gone or data-ready.
// An unset cohort is never ready.
func (m *Mesh) ComputeReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasCohort {
		return false
	}
	for _, id := range m.cohort.IDs() {
		if mem, ok := m.members[id]; ok && !mem.IsDataReady() {
			return false
		}
	}
	return true
}

// ReadyMembers returns the data-ready member ids, sorted.
func (m *Mesh) ReadyMembers() []domain.MemberID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MemberID, 0, len(m.members))
	for id, mem := range m.members {
		if mem.IsDataReady() {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

func (m *Mesh) ReadyChannel(id domain.MemberID) (DataChannel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok || !mem.IsDataReady() {
		return nil, false
	}
	return mem.data, true
}

// ReadyChannels snapshots every data-ready member at call time.
func (m *Mesh) ReadyChannels() []MemberChannel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemberChannel, 0, len(m.members))
	for id, mem := range m.members {
		if mem.IsDataReady() {
			out = append(out, MemberChannel{ID: id, Data: mem.data})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mesh) MembersSnapshot() []MemberDTO {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemberDTO, 0, len(m.members))
	for id, mem := range m.members {
		out = append(out, MemberDTO{ID: id, State: mem.state.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mesh) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

func sortIDs(ids []domain.MemberID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
