package wsserver

type state int

const (
	stateConnected state = iota
	stateBound
	stateAwaiting
	stateDispatching
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateBound:
		return "bound"
	case stateAwaiting:
		return "awaiting"
	case stateDispatching:
		return "dispatching"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
