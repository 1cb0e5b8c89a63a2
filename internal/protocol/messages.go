package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is the renderer's verdict on an instruction, kept verbatim.
// Boolean replies become "true"/"false"; string replies are stored as sent.
type Status string

func (s Status) OK() bool { return s == "true" || s == "ok" }

func (s *Status) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*s = Status(b)
		return nil
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Status(v)
		return nil
	default:
		return fmt.Errorf("status: unsupported value %s", b)
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s == "true" || s == "false" {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

// GameEvent is the record of one executed instruction.
type GameEvent struct {
	Instruction Instruction `json:"-"`
	Status      Status      `json:"status"`
	Message     string      `json:"message"`
	Position    Position    `json:"position"`
}

// EventReply is the server reply to an instruction tag. Pointer fields
// distinguish "absent" from zero values.
type EventReply struct {
	Status   *Status   `json:"status"`
	Message  *string   `json:"message"`
	Position *Position `json:"position"`
}

// Missing lists the required fields absent from the reply.
func (r EventReply) Missing() []string {
	var out []string
	if r.Status == nil {
		out = append(out, "status")
	}
	if r.Message == nil {
		out = append(out, "message")
	}
	if r.Position == nil {
		out = append(out, "position")
	}
	return out
}

func (r EventReply) Event(i Instruction) GameEvent {
	return GameEvent{Instruction: i, Status: *r.Status, Message: *r.Message, Position: *r.Position}
}

// Feature is a terrain sample encoded on the wire as [x, z, height].
type Feature struct {
	X      float64
	Z      float64
	Height float64
}

func (f Feature) Coord() Coord { return Coord{X: f.X, Z: f.Z} }

func (f *Feature) UnmarshalJSON(b []byte) error {
	var t []float64
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	if len(t) < 3 {
		return fmt.Errorf("feature: want [x,z,height], got %d values", len(t))
	}
	f.X, f.Z, f.Height = t[0], t[1], t[2]
	return nil
}

func (f Feature) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{f.X, f.Z, f.Height})
}

// WorldInfo is the world_info reply.
type WorldInfo struct {
	World WorldData `json:"world"`
}

type WorldData struct {
	Blocks      []Feature `json:"blocks"`
	Forest      []Feature `json:"forest"`
	ExtraMeshes []Feature `json:"extra_meshes"`
}

// FeatureCount is the total number of samples across all collections.
func (w WorldInfo) FeatureCount() int {
	return len(w.World.Blocks) + len(w.World.Forest) + len(w.World.ExtraMeshes)
}

// CharacterStatusReply is the character_status reply.
type CharacterStatusReply struct {
	Character struct {
		CurrentPosition Position  `json:"current_position"`
		NextPosition    Coord     `json:"next_position"`
		Direction       Direction `json:"direction"`
	} `json:"character"`
}

// CharacterState is a snapshot of the character's pose.
type CharacterState struct {
	Current   Position  `json:"current_position"`
	Next      Coord     `json:"next_position"`
	Direction Direction `json:"direction"`
}

func (r CharacterStatusReply) State() CharacterState {
	return CharacterState{
		Current:   r.Character.CurrentPosition,
		Next:      r.Character.NextPosition,
		Direction: r.Character.Direction,
	}
}

// ParseSize decodes the world_info_size token. Renderers pad it with
// whitespace or NUL bytes.
func ParseSize(b []byte) (int, error) {
	tok := bytes.Trim(b, " \t\r\n\x00")
	n, err := strconv.Atoi(string(tok))
	if err != nil {
		return 0, fmt.Errorf("size token %q: %w", tok, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("size token %q: negative", tok)
	}
	return n, nil
}
