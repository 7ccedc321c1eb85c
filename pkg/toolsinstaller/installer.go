package toolsinstaller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wgtunnel/pkg/rootshell"
)

const (
	exitSuccess  = 0
	exitEALREADY = 114

	disableMagiskFlag = "/cache/.disable_magisk"
	magiskModuleName  = "wireguard"
)

// Executable maps a bundled library file to the tool name it is installed as.
type Executable struct {
	Library string
	Name    string
}

var DefaultExecutables = []Executable{
	{Library: "libwg.so", Name: "wg"},
	{Library: "libwg-quick.so", Name: "wg-quick"},
}

var DefaultInstallDirs = []string{"/system/xbin", "/system/bin"}

type Options struct {
	NativeLibraryDir string
	LocalBinaryDir   string
	InstallDirs      []string
	// SearchPath is the PATH used to pick an install directory. It defaults
	// to the PATH of the current process.
	SearchPath  string
	VersionName string
	VersionCode int
	Executables []Executable
}

// Installer links the bundled wg and wg-quick binaries into a private
// directory and installs them system wide, either on the system partition or
// as a Magisk module.
type Installer struct {
	shell   rootshell.Shell
	options Options
	isDir   func(path string) bool

	mu           sync.Mutex
	linkState    State
	installState State
	magisk       *bool
}

func New(shell rootshell.Shell, options Options) *Installer {
	if len(options.InstallDirs) == 0 {
		options.InstallDirs = DefaultInstallDirs
	}
	if len(options.Executables) == 0 {
		options.Executables = DefaultExecutables
	}
	if options.SearchPath == "" {
		options.SearchPath = os.Getenv("PATH")
	}

	return &Installer{
		shell:        shell,
		options:      options,
		isDir:        isDir,
		linkState:    StateUnchecked,
		installState: StateUnchecked,
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (i *Installer) LinkState() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.linkState
}

func (i *Installer) InstallState() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installState
}

// EnsureAvailable makes wg and wg-quick reachable from the local binary
// directory. A failed link is final: later calls return ErrToolsUnavailable
// without touching the shell again. Missing root is not final.
func (i *Installer) EnsureAvailable(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.linkState {
	case StateSymlinked:
		return nil
	case StateFailed:
		return ErrToolsUnavailable
	}

	i.linkState = StateChecking
	exitCode, err := i.shell.Run(ctx, nil, i.symlinkScript())
	if err != nil {
		if errors.Is(err, rootshell.ErrNoRoot) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			i.linkState = StateUnchecked
			return err
		}
		i.linkState = StateFailed
		logrus.WithError(err).Error("failed to link tools")
		return fmt.Errorf("%w: %w", ErrToolsUnavailable, err)
	}

	switch exitCode {
	case exitEALREADY:
		logrus.Debug("tools were already linked into the local binary directory")
	case exitSuccess:
		logrus.Debug("tools are now linked into the local binary directory")
	default:
		i.linkState = StateFailed
		logrus.WithField("exitCode", exitCode).Error("wg and wg-quick are not available")
		return fmt.Errorf("%w: link script exited with %d", ErrToolsUnavailable, exitCode)
	}

	i.linkState = StateSymlinked
	return nil
}

// AreInstalled compares the bundled binaries with the installed ones. It never
// copies anything.
func (i *Installer) AreInstalled(ctx context.Context) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	installDir := i.installDir()
	if installDir == "" {
		return Result{Status: StatusError}, ErrNoInstallTarget
	}

	path, err := i.installPath(ctx)
	if err != nil {
		return Result{Status: StatusError}, err
	}

	exitCode, err := i.shell.Run(ctx, nil, i.compareScript(installDir)+" true")
	if err != nil {
		return Result{Status: StatusError, Path: path}, err
	}

	if exitCode == exitEALREADY {
		i.installState = installedState(path)
		return Result{Status: StatusAlreadyInstalled, Path: path}, nil
	}
	i.installState = needsInstallState(path)
	return Result{Status: StatusNotInstalled, Path: path}, nil
}

// Install copies the tools system wide. Installing over identical files is a
// no-op reported as StatusAlreadyInstalled.
func (i *Installer) Install(ctx context.Context) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	installDir := i.installDir()
	if installDir == "" {
		i.installState = StateFailed
		return Result{Status: StatusError}, ErrNoInstallTarget
	}

	path, err := i.installPath(ctx)
	if err != nil {
		i.installState = StateFailed
		return Result{Status: StatusError}, err
	}

	var script string
	switch path {
	case PathMagisk:
		script, err = i.magiskInstallScript(ctx, installDir)
		if err != nil {
			i.installState = StateFailed
			return Result{Status: StatusError, Path: path}, err
		}
	default:
		script = i.systemInstallScript(installDir)
	}

	exitCode, err := i.shell.Run(ctx, nil, script)
	if err != nil {
		i.installState = StateFailed
		return Result{Status: StatusError, Path: path}, err
	}

	switch exitCode {
	case exitEALREADY:
		i.installState = installedState(path)
		return Result{Status: StatusAlreadyInstalled, Path: path}, nil
	case exitSuccess:
		i.installState = installedState(path)
		logrus.
			WithField("path", path.String()).
			WithField("dir", installDir).
			Info("tools installed")
		return Result{Status: StatusInstalled, Path: path}, nil
	default:
		i.installState = StateFailed
		return Result{Status: StatusError, Path: path}, fmt.Errorf("%w: exit code %d", ErrInstallScriptFailed, exitCode)
	}
}

func installedState(path Path) State {
	if path == PathMagisk {
		return StateInstalledMagisk
	}
	return StateInstalledSystem
}

func needsInstallState(path Path) State {
	if path == PathMagisk {
		return StateNeedsMagiskInstall
	}
	return StateNeedsSystemInstall
}

// installDir returns the first install directory candidate that is on the
// search path and exists. Without a search path the first candidate is used.
func (i *Installer) installDir() string {
	if i.options.SearchPath == "" {
		return i.options.InstallDirs[0]
	}

	paths := filepath.SplitList(i.options.SearchPath)
	for _, dir := range i.options.InstallDirs {
		if slices.Contains(paths, dir) && i.isDir(dir) {
			return dir
		}
	}
	return ""
}

// installPath detects Magisk once. A detection that could not run, for
// example without root, is not remembered.
func (i *Installer) installPath(ctx context.Context) (Path, error) {
	if i.magisk == nil {
		magisk, err := i.detectMagisk(ctx)
		if err != nil {
			return PathSystem, err
		}
		i.magisk = &magisk
	}
	if *i.magisk {
		return PathMagisk, nil
	}
	return PathSystem, nil
}

func (i *Installer) detectMagisk(ctx context.Context) (bool, error) {
	dir, err := i.magiskDir(ctx)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf("[ -d %[1]s/mirror -a -d %[1]s/img -a ! -f %[2]s ]", rootshell.Quote(dir), disableMagiskFlag)
	exitCode, err := i.shell.Run(ctx, nil, script)
	if err != nil {
		return false, fmt.Errorf("failed to detect magisk: %w", err)
	}
	return exitCode == exitSuccess, nil
}

func (i *Installer) magiskDir(ctx context.Context) (string, error) {
	var out bytes.Buffer
	if _, err := i.shell.Run(ctx, &out, "su --version | cut -d ':' -f 1"); err != nil {
		return "", fmt.Errorf("failed to read su version: %w", err)
	}
	version, _, _ := strings.Cut(out.String(), "\n")
	if strings.HasPrefix(strings.TrimSpace(version), "18.") {
		return "/sbin/.magisk", nil
	}
	return "/sbin/.core", nil
}

func (i *Installer) symlinkScript() string {
	var sb strings.Builder
	sb.WriteString("set -x; ")
	for _, e := range i.options.Executables {
		fmt.Fprintf(&sb, "test %s -ef %s && ", i.library(e), rootshell.Quote(filepath.Join(i.options.LocalBinaryDir, e.Name)))
	}
	fmt.Fprintf(&sb, "exit %d; set -e; ", exitEALREADY)
	fmt.Fprintf(&sb, "mkdir -p %s; ", rootshell.Quote(i.options.LocalBinaryDir))
	for _, e := range i.options.Executables {
		fmt.Fprintf(&sb, "ln -fns %s %s; ", i.library(e), rootshell.Quote(filepath.Join(i.options.LocalBinaryDir, e.Name)))
	}
	fmt.Fprintf(&sb, "exit %d;", exitSuccess)
	return sb.String()
}

// compareScript exits with EALREADY when every installed binary in dir is
// identical to the bundled one.
func (i *Installer) compareScript(dir string) string {
	var sb strings.Builder
	for _, e := range i.options.Executables {
		fmt.Fprintf(&sb, "cmp -s %s %s && ", i.library(e), rootshell.Quote(filepath.Join(dir, e.Name)))
	}
	fmt.Fprintf(&sb, "exit %d;", exitEALREADY)
	return sb.String()
}

func (i *Installer) copyScript(dir string) string {
	var sb strings.Builder
	for _, e := range i.options.Executables {
		destination := rootshell.Quote(filepath.Join(dir, e.Name))
		fmt.Fprintf(&sb, "cp %s %s; chmod 755 %s; restorecon %s || true; ", i.library(e), destination, destination, destination)
	}
	return sb.String()
}

func (i *Installer) systemInstallScript(installDir string) string {
	var sb strings.Builder
	sb.WriteString(i.compareScript(installDir))
	sb.WriteString(" set -ex; ")
	sb.WriteString("trap 'mount -o ro,remount /system' EXIT; mount -o rw,remount /system; ")
	sb.WriteString(i.copyScript(installDir))
	return sb.String()
}

func (i *Installer) magiskInstallScript(ctx context.Context, installDir string) (string, error) {
	magiskDir, err := i.magiskDir(ctx)
	if err != nil {
		return "", err
	}
	moduleDir := filepath.Join(magiskDir, "img", magiskModuleName)
	quotedModuleDir := rootshell.Quote(moduleDir)

	var sb strings.Builder
	sb.WriteString(i.compareScript(installDir))
	sb.WriteString(" set -ex; ")
	fmt.Fprintf(&sb, "trap 'rm -rf %s' INT TERM EXIT; ", moduleDir)
	fmt.Fprintf(&sb, "rm -rf %s; mkdir -p %s; ", quotedModuleDir, rootshell.Quote(filepath.Join(moduleDir, installDir)))
	fmt.Fprintf(&sb,
		"printf 'name=WireGuard Command Line Tools\\nversion=%s\\nversionCode=%d\\nauthor=zx2c4\\ndescription=Command line tools for WireGuard\\nminMagisk=1500\\n' > %s; ",
		i.options.VersionName, i.options.VersionCode, rootshell.Quote(filepath.Join(moduleDir, "module.prop")))
	fmt.Fprintf(&sb, "touch %s; ", rootshell.Quote(filepath.Join(moduleDir, "auto_mount")))
	sb.WriteString(i.copyScript(filepath.Join(moduleDir, installDir)))
	sb.WriteString("trap - INT TERM EXIT;")
	return sb.String(), nil
}

func (i *Installer) library(e Executable) string {
	return rootshell.Quote(filepath.Join(i.options.NativeLibraryDir, e.Library))
}
