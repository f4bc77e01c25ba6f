package reconciler

import (
	"fmt"
	"strings"
)

// EventKind names the trigger of a reconciliation pass.
type EventKind int

const (
	PackageAdded EventKind = iota + 1
	PackageChanged
	PackageRemoved
	FullRescan
)

var eventNames = map[EventKind]string{
	PackageAdded:   "added",
	PackageChanged: "changed",
	PackageRemoved: "removed",
	FullRescan:     "rescan",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind accepts the names printed by String.
func ParseEventKind(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range eventNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q (want added, changed, removed or rescan)", s)
}

// Event is one package notification. Package is ignored for FullRescan.
type Event struct {
	Kind    EventKind
	Package string
}

func (e Event) String() string {
	if e.Kind == FullRescan {
		return e.Kind.String()
	}
	return e.Kind.String() + " " + e.Package
}
