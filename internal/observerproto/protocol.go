package observerproto

import "renderbot.ai/internal/protocol"

// Version is the observer feed protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeEvent     = "EVENT"
	TypeSummary   = "SUMMARY"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Backlog asks for up to this many already-recorded events before live ones.
	Backlog int `json:"backlog,omitempty"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	Session         string         `json:"session"`
	Renderer        string         `json:"renderer"`
	Goal            protocol.Coord `json:"goal"`
	Events          int            `json:"events"`
	Observers       int            `json:"observers"`
}

// Server -> Client. One per executed instruction.
type EventMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Session         string            `json:"session"`
	Seq             int               `json:"seq"`
	Instruction     string            `json:"instruction"`
	Status          protocol.Status   `json:"status"`
	Message         string            `json:"message"`
	Position        protocol.Position `json:"position"`
}

// Server -> Client. Sent once when the run ends.
type SummaryMsg struct {
	Type            string                  `json:"type"`
	ProtocolVersion string                  `json:"protocol_version"`
	Session         string                  `json:"session"`
	Iterations      int                     `json:"iterations"`
	ReachedGoal     bool                    `json:"reached_goal"`
	Final           protocol.CharacterState `json:"final"`
	Error           string                  `json:"error,omitempty"`
}
