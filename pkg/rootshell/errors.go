package rootshell

import "errors"

var (
	ErrNoRoot         = errors.New("root access is not available")
	ErrShellExited    = errors.New("root shell exited unexpectedly")
	ErrMalformedFrame = errors.New("root shell returned a malformed frame")
)
