// Package codec frames and parses the relay and peer-channel envelopes.
//
// Control-channel frames are either admin envelopes ({adminKind, data}) or
// user envelopes ({kind, data}); the presence of "adminKind" alone decides
// which. Peer-channel frames are always {from, kind, data}.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrMalformedMessage = errors.New("malformed message")

type AdminKind string

const (
	InitInfo     AdminKind = "initInfo"
	SDPOffer     AdminKind = "sdpOffer"
	SDPAnswer    AdminKind = "sdpAnswer"
	ICECandidate AdminKind = "iceCandidate"
	Disconnect   AdminKind = "disconnect"
	Forward      AdminKind = "fwd"
	Heartbeat    AdminKind = "hb"
	Ready        AdminKind = "ready"
)

const (
	fieldAdminKind = "adminKind"
	fieldKind      = "kind"
	fieldFrom      = "from"
	fieldData      = "data"
)

// Admin is a protocol-internal envelope.
type Admin struct {
	Kind AdminKind       `json:"adminKind"`
	Data json.RawMessage `json:"data"`
}

// User is an application message on the control channel.
type User struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Peer is an application message on a peer channel. From is informational
// only; the receiving side knows the sender by the channel it arrived on.
type Peer struct {
	From domain.MemberID `json:"from"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Control is a decoded control-channel frame. Exactly one field is set.
type Control struct {
	Admin *Admin
	User  *User
}

type ForwardData struct {
	To  domain.MemberID `json:"to"`
	Msg Admin           `json:"msg"`
}

type InitInfoData struct {
	ID         domain.MemberID   `json:"id"`
	Members    []domain.MemberID `json:"members"`
	HBInterval int64             `json:"hbInterval"`
}

type SDPData struct {
	From domain.MemberID           `json:"from"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type CandidateData struct {
	From      domain.MemberID         `json:"from"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type DisconnectData struct {
	ID domain.MemberID `json:"id"`
}

func EncodeAdmin(kind AdminKind, data any) (core.Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Admin{Kind: kind, Data: raw})
}

// EncodeForward wraps an admin message for the relay to re-deliver to `to`.
func EncodeForward(to domain.MemberID, kind AdminKind, data any) (core.Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return EncodeAdmin(Forward, ForwardData{To: to, Msg: Admin{Kind: kind, Data: raw}})
}

func EncodeUser(kind string, data any) (core.Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(User{Kind: kind, Data: raw})
}

func EncodePeer(from domain.MemberID, kind string, data any) (core.Frame, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Peer{From: from, Kind: kind, Data: raw})
}

// DecodeControl classifies a relay frame as admin or user.
func DecodeControl(f core.Frame) (Control, error) {
	fields, err := decodeObject(f)
	if err != nil {
		return Control{}, err
	}
	if rawKind, ok := fields[fieldAdminKind]; ok {
		kind, err := decodeKind(rawKind, fieldAdminKind)
		if err != nil {
			return Control{}, err
		}
		return Control{Admin: &Admin{Kind: AdminKind(kind), Data: fields[fieldData]}}, nil
	}
	rawKind, ok := fields[fieldKind]
	if !ok {
		return Control{}, fmt.Errorf("%w: missing %q or %q", ErrMalformedMessage, fieldAdminKind, fieldKind)
	}
	kind, err := decodeKind(rawKind, fieldKind)
	if err != nil {
		return Control{}, err
	}
	return Control{User: &User{Kind: kind, Data: fields[fieldData]}}, nil
}

// DecodePeer parses a peer-channel frame.
func DecodePeer(f core.Frame) (Peer, error) {
	fields, err := decodeObject(f)
	if err != nil {
		return Peer{}, err
	}
	rawKind, ok := fields[fieldKind]
	if !ok {
		return Peer{}, fmt.Errorf("%w: missing %q", ErrMalformedMessage, fieldKind)
	}
	kind, err := decodeKind(rawKind, fieldKind)
	if err != nil {
		return Peer{}, err
	}
	p := Peer{Kind: kind, Data: fields[fieldData]}
	if rawFrom, ok := fields[fieldFrom]; ok {
		if err := json.Unmarshal(rawFrom, &p.From); err != nil {
			return Peer{}, fmt.Errorf("%w: %q: %v", ErrMalformedMessage, fieldFrom, err)
		}
	}
	return p, nil
}

// Decode unmarshals the admin payload into v.
func (a Admin) Decode(v any) error {
	if len(a.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedMessage, a.Kind)
	}
	if err := json.Unmarshal(a.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedMessage, a.Kind, err)
	}
	return nil
}

func decodeObject(f core.Frame) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	return fields, nil
}

func decodeKind(raw json.RawMessage, field string) (string, error) {
	var kind string
	if err := json.Unmarshal(raw, &kind); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", ErrMalformedMessage, field)
	}
	if kind == "" {
		return "", fmt.Errorf("%w: empty %q", ErrMalformedMessage, field)
	}
	return kind, nil
}

func marshalData(data any) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok && raw != nil {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return b, nil
}
