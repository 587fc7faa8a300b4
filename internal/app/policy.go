package app

import "github.com/dkeye/Mesh/internal/domain"

type BackpressureAction int

const (
	SendAnyway BackpressureAction = iota
	DropMessage
)

// Policy decides what to do with a peer message when the member's data
// channel already has `buffered` bytes queued.
type Policy interface {
	OnBackPressure(id domain.MemberID, buffered uint64) BackpressureAction
}

// SimplePolicy drops messages for members above MaxBuffered. Zero disables it.
type SimplePolicy struct {
	MaxBuffered uint64
}

func (p SimplePolicy) OnBackPressure(_ domain.MemberID, buffered uint64) BackpressureAction {
	if p.MaxBuffered > 0 && buffered > p.MaxBuffered {
		return DropMessage
	}
	return SendAnyway
}
