package core

import "github.com/dkeye/Mesh/internal/domain"

// PublishResult reports delivery stats/backpressure of a broadcast.
type PublishResult struct {
	SentTo  int               `json:"sent_to"`
	Dropped []domain.MemberID `json:"dropped"`
}

// MemberChannel is a read-only view of one data-ready member.
type MemberChannel struct {
	ID   domain.MemberID
	Data DataChannel
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID    domain.MemberID `json:"id"`
	State string          `json:"state"`
}
