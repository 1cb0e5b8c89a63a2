package nav

import "renderbot.ai/internal/protocol"

// DefaultJumpHeight is the highest rise, relative to the character's
// footing, that a jump clears.
const DefaultJumpHeight = 1.25

// Flags are the feasibility flags handed to the move policy.
type Flags struct {
	CanWalk      bool
	CanJump      bool
	CanTurnLeft  bool
	CanTurnRight bool
}

// Heights is the lookup the planner needs from the height index.
type Heights interface {
	Query(c protocol.Coord) (height float64, ok bool)
}

// Classify decides whether the cell ahead can be walked onto or jumped onto.
// Footing is currentY-1. A height of zero is void, and so is a cell with no
// known height.
func Classify(height float64, known bool, currentY, jumpHeight float64) (canWalk, canJump bool) {
	if !known || height == 0 {
		return false, false
	}
	footing := currentY - 1
	if height <= footing {
		return true, true
	}
	if rise := height - footing; rise > 0 && rise < jumpHeight {
		return false, true
	}
	return false, false
}

// Neighbors returns the cells to the left and right of c for a character
// facing dir. ok is false for an unknown facing.
func Neighbors(dir protocol.Direction, c protocol.Coord) (left, right protocol.Coord, ok bool) {
	switch dir {
	case protocol.DirXPositive:
		return c.Offset(0, -1), c.Offset(0, 1), true
	case protocol.DirXNegative:
		return c.Offset(0, 1), c.Offset(0, -1), true
	case protocol.DirZPositive:
		return c.Offset(1, 0), c.Offset(-1, 0), true
	case protocol.DirZNegative:
		return c.Offset(-1, 0), c.Offset(1, 0), true
	case protocol.DirUnknown:
		return c, c, false
	default:
		return c, c, false
	}
}

// TurnFeasibility checks the side cells around the current position. Unlike
// Classify it does not treat a zero height as void, and a cell with no known
// height counts as height zero.
func TurnFeasibility(h Heights, pos protocol.Position, dir protocol.Direction, jumpHeight float64) (canLeft, canRight bool) {
	left, right, ok := Neighbors(dir, pos.Horizontal())
	if !ok {
		return false, false
	}
	return climbable(h, left, pos.Y, jumpHeight), climbable(h, right, pos.Y, jumpHeight)
}

func climbable(h Heights, c protocol.Coord, currentY, jumpHeight float64) bool {
	height, _ := h.Query(c)
	return height-(currentY-1) < jumpHeight
}

// Evaluate computes all four flags for a character snapshot.
func Evaluate(h Heights, st protocol.CharacterState, jumpHeight float64) Flags {
	height, known := h.Query(st.Next)
	var f Flags
	f.CanWalk, f.CanJump = Classify(height, known, st.Current.Y, jumpHeight)
	f.CanTurnLeft, f.CanTurnRight = TurnFeasibility(h, st.Current, st.Direction, jumpHeight)
	return f
}
