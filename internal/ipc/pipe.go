package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// Reader backoff while the peer has not opened its writer yet.
	openRetryInterval = 100 * time.Millisecond

	queueCapacity = 256
)

// PipeChannel is a MessageChannel over a pair of named pipes. The engine
// side owns the pipes: the constructor creates <base>_to_peer (outbound)
// and <base>_to_engine (inbound); the peer opens them with the roles
// reversed.
type PipeChannel struct {
	outPath string
	inPath  string

	queue chan string

	cbMu     sync.Mutex
	callback func(string)

	wMu sync.Mutex
	out *os.File

	mu      sync.Mutex
	in      *os.File
	started bool
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPipeChannel creates both pipes, replacing any stale ones left from a
// previous run.
func NewPipeChannel(base string) (*PipeChannel, error) {
	c := &PipeChannel{
		outPath: base + "_to_peer",
		inPath:  base + "_to_engine",
		queue:   make(chan string, queueCapacity),
		done:    make(chan struct{}),
	}

	for _, path := range []string{c.outPath, c.inPath} {
		_ = os.Remove(path)
		if err := syscall.Mkfifo(path, 0o666); err != nil {
			_ = os.Remove(c.outPath)
			return nil, fmt.Errorf("create pipe %s: %w", path, err)
		}
	}
	return c, nil
}

// OutboundPath is the pipe the peer reads (engine to peer).
func (c *PipeChannel) OutboundPath() string { return c.outPath }

// InboundPath is the pipe the peer writes (peer to engine).
func (c *PipeChannel) InboundPath() string { return c.inPath }

func (c *PipeChannel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return nil
	}
	c.started = true
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

func (c *PipeChannel) Send(msg string) error {
	if strings.ContainsRune(msg, '\n') {
		return ErrEmbeddedNewline
	}

	c.wMu.Lock()
	defer c.wMu.Unlock()

	if c.out == nil {
		// A non-blocking open fails with ENXIO until the peer has the
		// read end open; fall back to a blocking open in that case.
		f, err := os.OpenFile(c.outPath, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			f, err = os.OpenFile(c.outPath, os.O_WRONLY, 0)
			if err != nil {
				return fmt.Errorf("open outbound pipe: %w", err)
			}
		}
		c.out = f
	}

	if _, err := c.out.WriteString(msg + "\n"); err != nil {
		c.out.Close()
		c.out = nil
		return fmt.Errorf("write outbound pipe: %w", err)
	}
	return nil
}

func (c *PipeChannel) Receive(timeout time.Duration) (string, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-c.queue:
		return msg, true
	case <-t.C:
		return "", false
	}
}

func (c *PipeChannel) SetCallback(fn func(msg string)) {
	c.cbMu.Lock()
	c.callback = fn
	c.cbMu.Unlock()
}

func (c *PipeChannel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	in := c.in
	close(c.done)
	c.mu.Unlock()

	if in != nil {
		in.Close()
	}
	if started {
		c.wg.Wait()
	}
}

// Close stops the channel, closes the write end and unlinks both pipes.
func (c *PipeChannel) Close() {
	c.Stop()

	c.wMu.Lock()
	if c.out != nil {
		c.out.Close()
		c.out = nil
	}
	c.wMu.Unlock()

	_ = os.Remove(c.outPath)
	_ = os.Remove(c.inPath)
}

// readLoop opens the inbound pipe and splits the byte stream on newlines.
// A single sequential loop preserves the peer's write order end to end.
func (c *PipeChannel) readLoop() {
	defer c.wg.Done()

	var r *bufio.Reader
	for {
		select {
		case <-c.done:
			c.closeReader()
			return
		default:
		}

		if r == nil {
			f, err := os.OpenFile(c.inPath, os.O_RDONLY|syscall.O_NONBLOCK, 0)
			if err != nil {
				if !c.sleep(openRetryInterval) {
					return
				}
				continue
			}
			if !c.setReader(f) {
				f.Close()
				return
			}
			r = bufio.NewReader(f)
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			// EOF: the peer has not opened (or has closed) its write
			// end. Reopen after a fixed backoff; any unterminated
			// fragment is dropped with the dead writer.
			if errors.Is(err, io.EOF) {
				c.closeReader()
				r = nil
			}
			if !c.sleep(openRetryInterval) {
				c.closeReader()
				return
			}
			continue
		}

		msg := strings.TrimSuffix(line, "\n")
		if msg == "" {
			continue
		}
		c.deliver(msg)
	}
}

func (c *PipeChannel) deliver(msg string) {
	select {
	case c.queue <- msg:
	default:
		// Queue full: drop the oldest message to keep the reader live.
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- msg:
		default:
		}
	}

	c.cbMu.Lock()
	cb := c.callback
	c.cbMu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// setReader publishes the inbound handle so Stop can close it to unblock a
// pending read. Returns false if the channel stopped meanwhile.
func (c *PipeChannel) setReader(f *os.File) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.in = f
	return true
}

func (c *PipeChannel) closeReader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in != nil {
		c.in.Close()
		c.in = nil
	}
}

func (c *PipeChannel) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}
