package rootshell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Shell runs scripts in a privileged session.
type Shell interface {
	Start(ctx context.Context) error
	Run(ctx context.Context, stdout io.Writer, script string) (int, error)
	Stop() error
}

type Option func(*RootShell)

// WithCommand replaces the default "su" session command, e.g. with
// "sudo", "-n", "sh".
func WithCommand(command ...string) Option {
	return func(s *RootShell) {
		s.command = command
	}
}

// WithRootCheck toggles the uid 0 check performed on start.
func WithRootCheck(enabled bool) Option {
	return func(s *RootShell) {
		s.checkRoot = enabled
	}
}

// WithLocalBinaryDir prepends dir to the session PATH.
func WithLocalBinaryDir(dir string) Option {
	return func(s *RootShell) {
		s.localBinaryDir = dir
	}
}

func WithTempDir(dir string) Option {
	return func(s *RootShell) {
		s.tempDir = dir
	}
}

// RootShell keeps one long-lived shell process and runs scripts in it one at a
// time. Every run is framed by a random marker on both stdout and stderr.
type RootShell struct {
	command        []string
	checkRoot      bool
	localBinaryDir string
	tempDir        string

	mu     sync.Mutex
	cmd    *osexec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *bufio.Reader
}

func New(options ...Option) *RootShell {
	s := &RootShell{
		command:   []string{"su"},
		checkRoot: true,
		tempDir:   os.TempDir(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *RootShell) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *RootShell) startLocked(ctx context.Context) error {
	if s.cmd != nil {
		return nil
	}
	if len(s.command) == 0 {
		return fmt.Errorf("%w: empty shell command", ErrNoRoot)
	}

	path, err := osexec.LookPath(s.command[0])
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoRoot, s.command[0], err)
	}

	cmd := osexec.Command(path, s.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open shell stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open shell stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open shell stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %w", ErrNoRoot, strings.Join(s.command, " "), err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.stderr = bufio.NewReader(stderr)

	logrus.
		WithField("command", strings.Join(s.command, " ")).
		Debug("root shell started")

	if _, err := io.WriteString(s.stdin, s.preamble()); err != nil {
		s.stopLocked()
		return fmt.Errorf("%w: failed to initialize shell: %w", ErrNoRoot, err)
	}

	if !s.checkRoot {
		return nil
	}

	var out bytes.Buffer
	exitCode, err := s.runLocked(ctx, &out, "id -u")
	if err != nil {
		s.stopLocked()
		return fmt.Errorf("%w: %w", ErrNoRoot, err)
	}
	if exitCode != 0 || strings.TrimSpace(out.String()) != "0" {
		s.stopLocked()
		return fmt.Errorf("%w: shell runs as uid %q", ErrNoRoot, strings.TrimSpace(out.String()))
	}
	return nil
}

func (s *RootShell) preamble() string {
	var sb strings.Builder
	if s.localBinaryDir != "" {
		sb.WriteString("export PATH=" + Quote(s.localBinaryDir) + ":\"$PATH\"\n")
	}
	if s.tempDir != "" {
		sb.WriteString("export TMPDIR=" + Quote(s.tempDir) + "\n")
	}
	return sb.String()
}

// Run executes script and returns its exit status. Lines the script writes to
// stdout are copied to stdout when it is not nil. Cancelling ctx kills the
// session; the next Run starts a new one.
func (s *RootShell) Run(ctx context.Context, stdout io.Writer, script string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return -1, err
	}
	return s.runLocked(ctx, stdout, script)
}

func (s *RootShell) runLocked(ctx context.Context, stdout io.Writer, script string) (int, error) {
	marker := uuid.NewString()
	command := fmt.Sprintf("echo %[1]s; echo %[1]s >&2; (%[2]s); ret=$?; echo %[1]s $ret; echo %[1]s $ret >&2\n", marker, script)

	logrus.
		WithField("script", script).
		Debug("running root shell script")

	if _, err := io.WriteString(s.stdin, command); err != nil {
		s.stopLocked()
		return -1, fmt.Errorf("failed to write script: %w", err)
	}

	stdoutReader := s.stdout
	stderrReader := s.stderr

	var (
		g        errgroup.Group
		exitCode int
	)
	g.Go(func() error {
		code, err := readFrame(stdoutReader, marker, func(line string) {
			if stdout != nil {
				_, _ = io.WriteString(stdout, line+"\n")
			}
		})
		exitCode = code
		return err
	})
	g.Go(func() error {
		_, err := readFrame(stderrReader, marker, func(line string) {
			logrus.
				WithField("stream", "stderr").
				Debug(line)
		})
		return err
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.stopLocked()
			return -1, err
		}
		return exitCode, nil
	case <-ctx.Done():
		s.stopLocked()
		return -1, ctx.Err()
	}
}

// readFrame consumes one framed run from r. Lines between the opening and the
// closing marker are passed to emit. The closing marker carries the exit code.
func readFrame(r *bufio.Reader, marker string, emit func(line string)) (int, error) {
	started := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return -1, ErrShellExited
			}
			return -1, fmt.Errorf("failed to read shell output: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		if !started {
			if line == marker {
				started = true
			}
			continue
		}

		idx := strings.Index(line, marker+" ")
		if idx < 0 {
			emit(line)
			continue
		}
		if idx > 0 {
			emit(line[:idx])
		}

		code, err := strconv.Atoi(strings.TrimSpace(line[idx+len(marker)+1:]))
		if err != nil {
			return -1, fmt.Errorf("%w: %q", ErrMalformedFrame, line)
		}
		return code, nil
	}
}

// Stop ends the session. It is safe to call on a stopped shell.
func (s *RootShell) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *RootShell) stopLocked() error {
	if s.cmd == nil {
		return nil
	}

	cmd := s.cmd
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	s.stderr = nil

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill root shell: %w", err)
	}
	_ = cmd.Wait()

	logrus.Debug("root shell stopped")
	return nil
}

// Quote quotes s for use as a single shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
