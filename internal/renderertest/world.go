package renderertest

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/protocol"
)

// JumpHeight is how far above its footing the simulated character can climb.
const JumpHeight = 1.25

// World simulates a renderer: a height map plus one character that reacts to
// instructions. It implements Handler.
type World struct {
	mu sync.Mutex

	info    protocol.WorldInfo
	payload []byte
	heights *heightmap.Index

	pos protocol.Position
	dir protocol.Direction

	// FragmentSize splits the world_info payload into writes of this many
	// bytes, FragmentGap apart. Zero sends it in one write.
	FragmentSize int
	FragmentGap  time.Duration

	// PadSize pads the world_info_size token with NUL bytes to this width.
	PadSize int
}

func NewWorld(info protocol.WorldInfo, start protocol.Position, dir protocol.Direction) *World {
	b, _ := json.Marshal(info)
	return &World{
		info:    info,
		payload: b,
		heights: heightmap.FromWorld(info),
		pos:     start,
		dir:     dir,
	}
}

// FlatWorld is a w×d plateau of ground height 1 with its corner at the
// origin, and the character standing on (0, 0) facing +X.
func FlatWorld(w, d int) *World {
	var blocks []protocol.Feature
	for x := 0; x < w; x++ {
		for z := 0; z < d; z++ {
			blocks = append(blocks, protocol.Feature{X: float64(x), Z: float64(z), Height: 1})
		}
	}
	info := protocol.WorldInfo{World: protocol.WorldData{Blocks: blocks, Forest: []protocol.Feature{}, ExtraMeshes: []protocol.Feature{}}}
	return NewWorld(info, protocol.Position{X: 0, Y: 2, Z: 0}, protocol.DirXPositive)
}

func (w *World) Payload() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.payload...)
}

func (w *World) Character() (protocol.Position, protocol.Direction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos, w.dir
}

func (w *World) Handle(tag string) Reply {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch tag {
	case protocol.TagWorldInfoSize:
		tok := []byte(strconv.Itoa(len(w.payload)))
		for len(tok) < w.PadSize {
			tok = append(tok, 0)
		}
		return Reply{Frames: [][]byte{tok}}
	case protocol.TagWorldInfo:
		return w.fragments()
	case protocol.TagCharacterStatus:
		return w.status()
	}

	inst, ok := protocol.ParseInstruction(tag)
	if !ok {
		return Text(`{"status":false,"message":"unknown request","position":` + w.posJSON() + `}`)
	}
	ok, msg := w.apply(inst)
	b, _ := json.Marshal(map[string]any{"status": ok, "message": msg, "position": w.pos})
	return Reply{Frames: [][]byte{b}}
}

func (w *World) fragments() Reply {
	if w.FragmentSize <= 0 || w.FragmentSize >= len(w.payload) {
		return Reply{Frames: [][]byte{append([]byte(nil), w.payload...)}}
	}
	var frames [][]byte
	for off := 0; off < len(w.payload); off += w.FragmentSize {
		end := off + w.FragmentSize
		if end > len(w.payload) {
			end = len(w.payload)
		}
		frames = append(frames, append([]byte(nil), w.payload[off:end]...))
	}
	return Reply{Frames: frames, Gap: w.FragmentGap}
}

func (w *World) status() Reply {
	next := w.ahead()
	var r protocol.CharacterStatusReply
	r.Character.CurrentPosition = w.pos
	r.Character.NextPosition = next
	r.Character.Direction = w.dir
	b, _ := json.Marshal(r)
	return Reply{Frames: [][]byte{b}}
}

func (w *World) posJSON() string {
	b, _ := json.Marshal(w.pos)
	return string(b)
}

func (w *World) ahead() protocol.Coord {
	c := w.pos.Horizontal()
	switch w.dir {
	case protocol.DirXPositive:
		return c.Offset(1, 0)
	case protocol.DirXNegative:
		return c.Offset(-1, 0)
	case protocol.DirZPositive:
		return c.Offset(0, 1)
	case protocol.DirZNegative:
		return c.Offset(0, -1)
	default:
		return c
	}
}

func (w *World) apply(inst protocol.Instruction) (bool, string) {
	switch inst {
	case protocol.Walk, protocol.Jump:
		next := w.ahead()
		h, ok := w.heights.Query(next)
		if !ok || h == 0 {
			return false, "no ground"
		}
		rise := h - (w.pos.Y - 1)
		if rise > 0 && (inst == protocol.Walk || rise >= JumpHeight) {
			return false, "blocked"
		}
		w.pos = protocol.Position{X: next.X, Y: h + 1, Z: next.Z}
		if inst == protocol.Jump {
			return true, "jumped"
		}
		return true, "moved"
	case protocol.RotateLeft:
		w.dir = leftOf(w.dir)
		return true, "rotated"
	case protocol.RotateRight:
		w.dir = leftOf(leftOf(leftOf(w.dir)))
		return true, "rotated"
	case protocol.RotateBack:
		w.dir = leftOf(leftOf(w.dir))
		return true, "rotated"
	default:
		return false, "unsupported"
	}
}

func leftOf(d protocol.Direction) protocol.Direction {
	switch d {
	case protocol.DirXPositive:
		return protocol.DirZNegative
	case protocol.DirZNegative:
		return protocol.DirXNegative
	case protocol.DirXNegative:
		return protocol.DirZPositive
	case protocol.DirZPositive:
		return protocol.DirXPositive
	default:
		return d
	}
}
