package nav

import (
	"bytes"
	"context"
	"encoding/json"

	"renderbot.ai/internal/protocol"
	"renderbot.ai/internal/renderertest"
)

// worldRenderer calls a simulated world directly, skipping the network.
type worldRenderer struct{ w *renderertest.World }

func (r *worldRenderer) reply(tag string) []byte {
	return bytes.Join(r.w.Handle(tag).Frames, nil)
}

func (r *worldRenderer) RequestWorldInfo(ctx context.Context) (protocol.WorldInfo, error) {
	var w protocol.WorldInfo
	err := json.Unmarshal(r.reply(protocol.TagWorldInfo), &w)
	return w, err
}

func (r *worldRenderer) RequestCharacterStatus(ctx context.Context) (protocol.CharacterState, error) {
	var s protocol.CharacterStatusReply
	err := json.Unmarshal(r.reply(protocol.TagCharacterStatus), &s)
	return s.State(), err
}

func (r *worldRenderer) SendInstruction(ctx context.Context, inst protocol.Instruction) (protocol.GameEvent, error) {
	var e protocol.EventReply
	if err := json.Unmarshal(r.reply(inst.Tag()), &e); err != nil {
		return protocol.GameEvent{}, err
	}
	return e.Event(inst), nil
}
