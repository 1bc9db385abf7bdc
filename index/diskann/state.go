package diskann

import "fmt"

// State is the lifecycle state of an Index.
type State int32

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
