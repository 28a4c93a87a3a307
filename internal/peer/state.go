package peer

// State is the negotiation progress of a peer connection.
//
//	Created -> NegotiatingLocal -> AwaitingRemote -> Established
//
// Failed is reachable from every non-terminal state.
type State int32

const (
	Created State = iota
	NegotiatingLocal
	AwaitingRemote
	Established
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case NegotiatingLocal:
		return "negotiating-local"
	case AwaitingRemote:
		return "awaiting-remote"
	case Established:
		return "established"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Established || s == Failed
}
