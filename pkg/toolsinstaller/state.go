package toolsinstaller

import "fmt"

type State int

const (
	StateUnchecked State = iota
	StateChecking
	StateSymlinked
	StateNeedsSystemInstall
	StateNeedsMagiskInstall
	StateInstalledSystem
	StateInstalledMagisk
	StateFailed
)

var stateNames = map[State]string{
	StateUnchecked:          "unchecked",
	StateChecking:           "checking",
	StateSymlinked:          "symlinked",
	StateNeedsSystemInstall: "needs_system_install",
	StateNeedsMagiskInstall: "needs_magisk_install",
	StateInstalledSystem:    "installed_system",
	StateInstalledMagisk:    "installed_magisk",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Status int

const (
	StatusError Status = iota
	StatusAlreadyInstalled
	StatusNotInstalled
	StatusInstalled
)

var statusNames = map[Status]string{
	StatusError:            "error",
	StatusAlreadyInstalled: "already_installed",
	StatusNotInstalled:     "not_installed",
	StatusInstalled:        "installed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Path is where the tools are, or would be, installed.
type Path int

const (
	PathSystem Path = iota
	PathMagisk
)

func (p Path) String() string {
	switch p {
	case PathSystem:
		return "system"
	case PathMagisk:
		return "magisk"
	default:
		return fmt.Sprintf("Path(%d)", int(p))
	}
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

type Result struct {
	Status Status `json:"status"`
	Path   Path   `json:"path"`
}

func (r Result) String() string {
	return r.Status.String() + " (" + r.Path.String() + ")"
}
