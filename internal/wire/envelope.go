package wire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the decoded form of a tagged-pair wire message (name, data).
// It mirrors dsnet's Operation+Payload split (encode the payload
// independently of the envelope, decode it lazily per-tag).
type Envelope struct {
	Name Tag
	Data json.RawMessage
}

// EncodePair marshals (name, payload) as the 2-element JSON array the wire
// format requires: `[name, data]`.
func EncodePair(name Tag, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal payload")
	}
	pair := [2]any{name, json.RawMessage(data)}
	out, err := json.Marshal(pair)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal envelope")
	}
	return out, nil
}

// DecodeEnvelope parses a tagged-pair frame into its name and raw payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: decode envelope")
	}
	var name Tag
	if err := json.Unmarshal(pair[0], &name); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: decode tag")
	}
	return Envelope{Name: name, Data: pair[1]}, nil
}

// DecodePayload unmarshals an envelope's data into dst.
func (e Envelope) DecodePayload(dst any) error {
	return errors.Wrap(json.Unmarshal(e.Data, dst), "wire: decode payload")
}

// EncodeGotIt marshals the bare "GOT_IT" string reply.
func EncodeGotIt() ([]byte, error) {
	return json.Marshal(RespGotIt)
}

// DecodeGotIt reports whether raw is the bare "GOT_IT" string reply.
func DecodeGotIt(raw []byte) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == RespGotIt
}

// EncodeHowdyRequest marshals a HOWDY request: ("HOWDY", (identity, listen_address)).
func EncodeHowdyRequest(payload HowdyRequestPayload) ([]byte, error) {
	return EncodePair(TagHowdy, payload)
}

// EncodeElectRequest marshals an ELECT request.
func EncodeElectRequest(payload ElectPayload) ([]byte, error) {
	return EncodePair(TagElect, payload)
}

// EncodeLeaderRequest marshals an I_AM_LEADER request.
func EncodeLeaderRequest(payload LeaderPayload) ([]byte, error) {
	return EncodePair(TagIAmLeader, payload)
}

// EncodeProbeRequest marshals a PROBE request: ("PROBE", null).
func EncodeProbeRequest() ([]byte, error) {
	return EncodePair(TagProbe, nil)
}

// EncodeHowdyResponse marshals the bare HOWDY response mapping (not a
// tagged pair, same as GOT_IT's bare-string convention).
func EncodeHowdyResponse(members MembershipDTO) ([]byte, error) {
	out, err := json.Marshal(members)
	return out, errors.Wrap(err, "wire: marshal howdy response")
}

// DecodeHowdyResponse parses the bare HOWDY response mapping.
func DecodeHowdyResponse(raw []byte) (MembershipDTO, error) {
	var members MembershipDTO
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, errors.Wrap(err, "wire: decode howdy response")
	}
	return members, nil
}
