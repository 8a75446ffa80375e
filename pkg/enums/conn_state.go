package enums

import "fmt"

// ConnState describes the connectivity states surfaced to observers.
// SyncingDisplay is a transient display state owned by the synchronizer,
// never produced by the monitor itself.
type ConnState string

const (
	ConnStateOnline         ConnState = "online"
	ConnStateOffline        ConnState = "offline"
	ConnStateSyncingDisplay ConnState = "syncing"
)

var validConnStates = []ConnState{
	ConnStateOnline,
	ConnStateOffline,
	ConnStateSyncingDisplay,
}

// IsValid reports whether the value matches the canonical connectivity state enum.
func (c ConnState) IsValid() bool {
	for _, candidate := range validConnStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConnState converts the raw string to ConnState.
func ParseConnState(value string) (ConnState, error) {
	for _, candidate := range validConnStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid connectivity state %q", value)
}
