package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignalType enumerates every frame kind the relay accepts or emits.
// Unknown kinds are rejected at the boundary before any side effect.
type SignalType string

const (
	SignalTypeJoin       SignalType = "join"
	SignalTypeUserJoined SignalType = "user-joined"
	SignalTypeUserLeft   SignalType = "user-left"

	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "ice-candidate"

	SignalTypeMicActive           SignalType = "mic-active"
	SignalTypeMicInactive         SignalType = "mic-inactive"
	SignalTypeCameraEnabled       SignalType = "camera-enabled"
	SignalTypeCameraDisabled      SignalType = "camera-disabled"
	SignalTypeRequestCameraStates SignalType = "request-camera-states"
	SignalTypeRequestAudioStates  SignalType = "request-audio-states"

	SignalTypeWhiteboardDraw   SignalType = "whiteboard-draw"
	SignalTypeWhiteboardObject SignalType = "whiteboard-object"
	SignalTypeWhiteboardCursor SignalType = "whiteboard-cursor"
	SignalTypeWhiteboardClear  SignalType = "whiteboard-clear"

	SignalTypeScreenShareStart        SignalType = "screen-share-start"
	SignalTypeScreenShareStop         SignalType = "screen-share-stop"
	SignalTypeScreenShareRequestState SignalType = "screen-share-request-state"
	SignalTypeScreenShareStarted      SignalType = "screen-share-started"
	SignalTypeScreenShareStopped      SignalType = "screen-share-stopped"
	SignalTypeScreenShareState        SignalType = "screen-share-state"
	SignalTypeScreenShareError        SignalType = "screen-share-error"

	SignalTypeTurnTestStart    SignalType = "turn-test-start"
	SignalTypeTurnTestComplete SignalType = "turn-test-complete"
	SignalTypeTurnServerUsed   SignalType = "turn-server-used"

	SignalTypeRestorationComplete SignalType = "restoration-complete"
	SignalTypeError               SignalType = "error"
)

var knownTypes = map[SignalType]bool{
	SignalTypeJoin:                    true,
	SignalTypeUserJoined:              true,
	SignalTypeUserLeft:                true,
	SignalTypeOffer:                   true,
	SignalTypeAnswer:                  true,
	SignalTypeCandidate:               true,
	SignalTypeMicActive:               true,
	SignalTypeMicInactive:             true,
	SignalTypeCameraEnabled:           true,
	SignalTypeCameraDisabled:          true,
	SignalTypeRequestCameraStates:     true,
	SignalTypeRequestAudioStates:      true,
	SignalTypeWhiteboardDraw:          true,
	SignalTypeWhiteboardObject:        true,
	SignalTypeWhiteboardCursor:        true,
	SignalTypeWhiteboardClear:         true,
	SignalTypeScreenShareStart:        true,
	SignalTypeScreenShareStop:         true,
	SignalTypeScreenShareRequestState: true,
	SignalTypeScreenShareStarted:      true,
	SignalTypeScreenShareStopped:      true,
	SignalTypeScreenShareState:        true,
	SignalTypeScreenShareError:        true,
	SignalTypeTurnTestStart:           true,
	SignalTypeTurnTestComplete:        true,
	SignalTypeTurnServerUsed:          true,
	SignalTypeRestorationComplete:     true,
	SignalTypeError:                   true,
}

// alwaysBroadcast holds the kinds that fan out to the whole room even
// when a target id is present on the frame.
var alwaysBroadcast = map[SignalType]bool{
	SignalTypeUserJoined:          true,
	SignalTypeUserLeft:            true,
	SignalTypeMicActive:           true,
	SignalTypeMicInactive:         true,
	SignalTypeCameraEnabled:       true,
	SignalTypeCameraDisabled:      true,
	SignalTypeRequestCameraStates: true,
	SignalTypeRequestAudioStates:  true,
	SignalTypeWhiteboardDraw:      true,
	SignalTypeWhiteboardObject:    true,
	SignalTypeWhiteboardCursor:    true,
	SignalTypeWhiteboardClear:     true,
	SignalTypeScreenShareStarted:  true,
	SignalTypeScreenShareStopped:  true,
	SignalTypeTurnTestStart:       true,
	SignalTypeTurnTestComplete:    true,
	SignalTypeTurnServerUsed:      true,
}

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingSender = errors.New("message has no sender")
)

// SignalMessage is a parsed inbound or outbound frame. Raw holds the
// original JSON object so kind-specific payload fields survive the
// round trip untouched; the typed fields are the ones the relay
// itself reads.
type SignalMessage struct {
	Type   SignalType
	From   string
	UID    string
	To     string
	Room   string
	Target string

	Raw map[string]json.RawMessage
}

// Sender returns the user identifier on the frame, preferring "from"
// over "uid" as the original protocol does.
func (m *SignalMessage) Sender() string {
	if m.From != "" {
		return m.From
	}
	return m.UID
}

// Broadcast reports whether the frame fans out to the whole room.
func (m *SignalMessage) Broadcast() bool {
	return m.To == "" || alwaysBroadcast[m.Type]
}

// Parse decodes a wire frame, checks the kind against the closed set
// and pulls out the routing fields. The payload itself is not decoded.
func Parse(data []byte) (*SignalMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	msg := &SignalMessage{Raw: raw}
	msg.Type = SignalType(rawString(raw, "type"))
	if !knownTypes[msg.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	msg.From = rawString(raw, "from")
	msg.UID = rawString(raw, "uid")
	msg.To = rawString(raw, "to")
	msg.Room = rawString(raw, "room")
	msg.Target = rawString(raw, "_target")
	return msg, nil
}

// Encode renders the frame back to wire JSON, carrying target as the
// receivers' self-filter field when set.
func (m *SignalMessage) Encode() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(m.Raw)+1)
	for k, v := range m.Raw {
		raw[k] = v
	}
	setRawString(raw, "type", string(m.Type))
	if m.From != "" {
		setRawString(raw, "from", m.From)
	}
	if m.To != "" {
		setRawString(raw, "to", m.To)
	}
	if m.Room != "" {
		setRawString(raw, "room", m.Room)
	}
	if m.Target != "" {
		setRawString(raw, "_target", m.Target)
	}
	return json.Marshal(raw)
}

// New builds a server-originated frame with the given extra fields.
func New(t SignalType, from string, fields map[string]any) *SignalMessage {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		raw[k] = data
	}
	return &SignalMessage{Type: t, From: from, Raw: raw}
}

// ErrorReply builds the error frame sent back to a misbehaving sender.
func ErrorReply(to, reason string) *SignalMessage {
	msg := New(SignalTypeError, "system", map[string]any{"message": reason})
	msg.To = to
	return msg
}

func rawString(raw map[string]json.RawMessage, key string) string {
	data, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	return s
}

func setRawString(raw map[string]json.RawMessage, key, value string) {
	data, _ := json.Marshal(value)
	raw[key] = data
}
