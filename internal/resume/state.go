package resume

// State is a resume controller state.
type State int

const (
	StateProbing State = iota
	StateTransferring
	StateNetworkWait
	StateSucceeded
	StateFailedTimeout
	StateFailedFatal
)

var stateNames = map[State]string{
	StateProbing:       "probing",
	StateTransferring:  "transferring",
	StateNetworkWait:   "network_wait",
	StateSucceeded:     "succeeded",
	StateFailedTimeout: "failed_timeout",
	StateFailedFatal:   "failed_fatal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the controller stops in s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailedTimeout || s == StateFailedFatal
}
