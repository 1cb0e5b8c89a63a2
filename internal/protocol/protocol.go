package protocol

import "encoding/json"

// DefaultPort is the renderer's fixed TCP port.
const DefaultPort = 7777

// Control tags (client -> server). Instruction tags are the instruction names.
const (
	TagWorldInfoSize   = "world_info_size"
	TagWorldInfo       = "world_info"
	TagCharacterStatus = "character_status"
)

// Instruction is a discrete command sent to the remote character.
type Instruction int

const (
	Walk Instruction = iota + 1
	Jump
	RotateLeft
	RotateRight
	RotateBack
)

var instructionTags = map[Instruction]string{
	Walk:        "WALK",
	Jump:        "JUMP",
	RotateLeft:  "ROTATE_LEFT",
	RotateRight: "ROTATE_RIGHT",
	RotateBack:  "ROTATE_BACK",
}

// Tag returns the wire tag, which is also the instruction's name.
func (i Instruction) Tag() string {
	if t, ok := instructionTags[i]; ok {
		return t
	}
	return ""
}

func (i Instruction) String() string {
	if t := i.Tag(); t != "" {
		return t
	}
	return "INVALID"
}

func (i Instruction) Valid() bool { return i.Tag() != "" }

// ParseInstruction maps a wire tag back to its instruction.
func ParseInstruction(tag string) (Instruction, bool) {
	for i, t := range instructionTags {
		if t == tag {
			return i, true
		}
	}
	return 0, false
}

// Direction is the character's facing along a horizontal axis.
type Direction int

const (
	DirUnknown Direction = iota
	DirXPositive
	DirXNegative
	DirZPositive
	DirZNegative
)

func (d Direction) String() string {
	switch d {
	case DirXPositive:
		return "XPositive"
	case DirXNegative:
		return "XNegative"
	case DirZPositive:
		return "ZPositive"
	case DirZNegative:
		return "ZNegative"
	default:
		return "Unknown"
	}
}

// ParseDirection never fails: values the renderer may add later read as DirUnknown.
func ParseDirection(s string) Direction {
	switch s {
	case "XPositive":
		return DirXPositive
	case "XNegative":
		return DirXNegative
	case "ZPositive":
		return DirZPositive
	case "ZNegative":
		return DirZNegative
	default:
		return DirUnknown
	}
}

func (d Direction) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = ParseDirection(s)
	return nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Horizontal drops the vertical component.
func (p Position) Horizontal() Coord { return Coord{X: p.X, Z: p.Z} }

// Coord is a horizontal (x, z) cell. It is comparable and used as a map key.
type Coord struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

func (c Coord) Offset(dx, dz float64) Coord { return Coord{X: c.X + dx, Z: c.Z + dz} }
