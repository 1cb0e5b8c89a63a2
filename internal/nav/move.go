package nav

import "renderbot.ai/internal/protocol"

// Move is the policy's choice for one iteration.
type Move int

const (
	MoveNone Move = iota
	MoveWalk
	MoveJump
	MoveRotateLeft
	MoveRotateRight
)

func (m Move) String() string {
	switch m {
	case MoveWalk:
		return "WALK"
	case MoveJump:
		return "JUMP"
	case MoveRotateLeft:
		return "ROTATE_LEFT"
	case MoveRotateRight:
		return "ROTATE_RIGHT"
	default:
		return "NONE"
	}
}

// Instruction maps the move onto the wire. MoveNone has no instruction.
func (m Move) Instruction() (protocol.Instruction, bool) {
	switch m {
	case MoveWalk:
		return protocol.Walk, true
	case MoveJump:
		return protocol.Jump, true
	case MoveRotateLeft:
		return protocol.RotateLeft, true
	case MoveRotateRight:
		return protocol.RotateRight, true
	default:
		return 0, false
	}
}

// ParseMove accepts the policy tags WALK, JUMP, ROTATE_LEFT, ROTATE_RIGHT
// and NONE.
func ParseMove(s string) (Move, bool) {
	switch s {
	case "WALK":
		return MoveWalk, true
	case "JUMP":
		return MoveJump, true
	case "ROTATE_LEFT":
		return MoveRotateLeft, true
	case "ROTATE_RIGHT":
		return MoveRotateRight, true
	case "NONE", "":
		return MoveNone, true
	default:
		return MoveNone, false
	}
}

// Policy picks the next move from the feasibility flags.
type Policy func(Flags) Move

// Idle never moves.
func Idle(Flags) Move { return MoveNone }

// Explore prefers walking, then jumping, then turning left, then right.
func Explore(f Flags) Move {
	switch {
	case f.CanWalk:
		return MoveWalk
	case f.CanJump:
		return MoveJump
	case f.CanTurnLeft:
		return MoveRotateLeft
	case f.CanTurnRight:
		return MoveRotateRight
	default:
		return MoveNone
	}
}

// PolicyByName resolves the built-in policies.
func PolicyByName(name string) (Policy, bool) {
	switch name {
	case "explore":
		return Explore, true
	case "idle":
		return Idle, true
	default:
		return nil, false
	}
}
