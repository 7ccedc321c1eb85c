package toolsinstaller

import "errors"

var (
	ErrToolsUnavailable    = errors.New("required tools unavailable")
	ErrInstallScriptFailed = errors.New("install script failed")
	ErrNoInstallTarget     = errors.New("no writable install directory found")
)
