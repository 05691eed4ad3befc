package tsserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ServerConfig defines how to start a tsserver process.
type ServerConfig struct {
	// Path is the tsserver script or executable.
	Path string

	// NodePath runs Path with the given node binary when set.
	NodePath string

	// Args are extra command-line arguments.
	Args []string

	// Mode is passed as --serverMode unless it is the semantic default.
	Mode ServerMode

	// Locale is passed as --locale when set.
	Locale string

	// Env are additional environment variables.
	Env map[string]string

	// WorkDir is the working directory of the process.
	WorkDir string
}

// Server is one tsserver child process.
type Server struct {
	mu sync.Mutex

	id     string
	config ServerConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	// stderrDone is closed once stderr has been read to the end.
	stderrDone chan struct{}

	transport        *Transport
	cancellationPipe string

	cancel context.CancelFunc
	exitCh chan error
	log    *logrus.Entry
}

// NewServer creates a server that is not yet started.
func NewServer(config ServerConfig, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	id := uuid.NewString()
	return &Server{
		id:               id,
		config:           config,
		cancellationPipe: filepath.Join(os.TempDir(), "tscancellation-"+id+".tmp*"),
		exitCh:           make(chan error, 1),
		log:              log.WithField("server", id[:8]),
	}
}

// ID returns the unique server id.
func (s *Server) ID() string {
	return s.id
}

// Transport returns the message transport, or nil before Start.
func (s *Server) Transport() *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Exited receives the process exit status once.
func (s *Server) Exited() <-chan error {
	return s.exitCh
}

// commandLine returns the program and arguments used to start the server.
func (s *Server) commandLine() (string, []string) {
	var args []string
	args = append(args, s.config.Args...)
	args = append(args, "--cancellationPipeName", s.cancellationPipe)
	if s.config.Mode != "" && s.config.Mode != ServerModeSemantic {
		args = append(args, "--serverMode", string(s.config.Mode))
	}
	if s.config.Locale != "" {
		args = append(args, "--locale", s.config.Locale)
	}

	if s.config.NodePath != "" {
		return s.config.NodePath, append([]string{s.config.Path}, args...)
	}
	return s.config.Path, args
}

// Start launches the process and begins reading its output.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return ErrServerAlreadyRunning
	}
	if s.config.Path == "" {
		return &ServerError{ServerID: s.id, Err: fmt.Errorf("no tsserver path configured")}
	}

	ctx, s.cancel = context.WithCancel(ctx)

	name, args := s.commandLine()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	for k, v := range s.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = s.config.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ServerError{ServerID: s.id, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &ServerError{ServerID: s.id, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &ServerError{ServerID: s.id, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		s.cancel()
		return &ServerError{ServerID: s.id, Err: fmt.Errorf("start process: %w", err)}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
	s.stderrDone = make(chan struct{})

	s.transport = NewTransport(stdout, stdin, nil, s.log)
	s.transport.Start(ctx)

	go s.drainStderr()
	go s.monitorProcess()

	s.log.WithField("args", strings.Join(args, " ")).Info("Started tsserver")
	return nil
}

func (s *Server) drainStderr() {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(s.stderr)
	for scanner.Scan() {
		s.log.Debug(scanner.Text())
	}
}

// monitorProcess waits for the process once its stderr is drained; Wait
// closes the pipe.
func (s *Server) monitorProcess() {
	<-s.stderrDone
	err := s.cmd.Wait()
	s.transport.Close()
	s.removeCancellationFiles()

	select {
	case s.exitCh <- err:
	default:
	}
}

// CancelRequest asks the server to abandon the request with sequence seq.
func (s *Server) CancelRequest(seq int64) error {
	if s.cancellationPipe == "" {
		return nil
	}
	name := strings.TrimSuffix(s.cancellationPipe, "*") + strconv.FormatInt(seq, 10)
	if err := os.WriteFile(name, nil, 0o600); err != nil {
		return fmt.Errorf("cancel request %d: %w", seq, err)
	}
	return nil
}

func (s *Server) removeCancellationFiles() {
	if s.cancellationPipe == "" {
		return
	}
	matches, err := filepath.Glob(s.cancellationPipe)
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// Kill stops the process immediately. Pending requests complete with
// ErrShutdown.
func (s *Server) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		s.transport.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
}
