package peer

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Supervisor owns the analyzer process lifecycle. A dead peer is only
// observable through IsRunning; relaunching is the owner's decision, there
// is no automatic restart.
type Supervisor struct {
	command     string
	args        []string
	stopTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

func NewSupervisor(command string, args []string, stopTimeout time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		command:     command,
		args:        args,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Start spawns the peer process. Its stdout/stderr are drained into the
// engine log at debug level.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.isRunningLocked() {
		return nil
	}

	cmd := exec.Command(s.command, s.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("peer stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("peer stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start peer process: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.exited = exited

	go s.drain("peer stdout", stdout)
	go s.drain("peer stderr", stderr)

	go func() {
		err := cmd.Wait()
		close(exited)
		if err != nil {
			s.logger.Warn("Peer process exited", zap.Error(err))
		} else {
			s.logger.Info("Peer process exited")
		}
	}()

	s.logger.Info("Peer process started",
		zap.String("command", s.command),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// IsRunning is a non-blocking liveness check.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunningLocked()
}

func (s *Supervisor) isRunningLocked() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Stop sends SIGTERM and waits up to the stop timeout for the process to
// exit, escalating to SIGKILL if it does not.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil {
		return
	}
	select {
	case <-exited:
		return
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("Failed to signal peer process", zap.Error(err))
	}

	select {
	case <-exited:
	case <-time.After(s.stopTimeout):
		s.logger.Warn("Peer did not exit in time, killing",
			zap.Duration("timeout", s.stopTimeout))
		_ = cmd.Process.Kill()
		<-exited
	}
}

func (s *Supervisor) drain(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug(name, zap.String("line", scanner.Text()))
	}
}
