package orchestrator

import "time"

const (
	// Live events buffered per subscriber of the session bus.
	EventBuffer = 64

	// Floor for the drain wait at stop, whatever the config says.
	MinDrainTimeout = time.Second
)

// State is the session lifecycle: Idle → Running → Stopping → Finalizing → Done.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Finalizing
	Done
)

func (s State) String() string {
	return [...]string{"idle", "running", "stopping", "finalizing", "done"}[s]
}

// Active reports whether a session occupies the manager.
func (s State) Active() bool {
	return s == Running || s == Stopping || s == Finalizing
}
