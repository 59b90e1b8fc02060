package session

type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

type Message struct {
	ID   int64
	Text string
	Role Role
}

// State is a snapshot of a session. Transcript is a copy and may be kept by
// the caller.
type State struct {
	Transcript     []Message
	ActiveEndpoint string
	AwaitingReply  bool
	Ended          bool
}

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingReply Phase = "awaiting_reply"
	PhaseEnded         Phase = "ended"
)

func (s State) Phase() Phase {
	switch {
	case s.Ended:
		return PhaseEnded
	case s.AwaitingReply:
		return PhaseAwaitingReply
	default:
		return PhaseIdle
	}
}
