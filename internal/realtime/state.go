package realtime

// State is the lifecycle position of one realtime connection.
type State int32

const (
	StateConnecting State = iota
	StateConfiguring
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// acceptsAudio reports whether caller audio may be appended in this state.
func (s State) acceptsAudio() bool {
	return s == StateActive || s == StateClosing
}
