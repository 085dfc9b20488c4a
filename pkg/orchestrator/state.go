package orchestrator

// State is the step an Orchestrator cycle is currently in.
type State int32

const (
	Idle State = iota
	Tokenizing
	Merging
	Aging
	Evicting
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tokenizing:
		return "tokenizing"
	case Merging:
		return "merging"
	case Aging:
		return "aging"
	case Evicting:
		return "evicting"
	case Rendering:
		return "rendering"
	default:
		return "unknown"
	}
}
