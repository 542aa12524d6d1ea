package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// StdinChannel is the "cli" channel name used for interactive, single-process
// sessions (the chat subcommand).
const StdinChannel = "cli"

// Stdin is a FullAdapter that reads one message per line from an io.Reader
// and writes replies to an io.Writer. It has exactly one chat: the process's
// own terminal.
type Stdin struct {
	chatID string
	in     *bufio.Scanner
	out    io.Writer
	prompt string

	msgs   chan models.InboundMessage
	status Status

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewStdin creates a Stdin adapter reading lines from in and writing
// replies (prefixed by prompt, if non-empty) to out. chatID identifies the
// single conversation this adapter carries.
func NewStdin(in io.Reader, out io.Writer, chatID, prompt string) *Stdin {
	return &Stdin{
		chatID: chatID,
		in:     bufio.NewScanner(in),
		out:    out,
		prompt: prompt,
		msgs:   make(chan models.InboundMessage),
		done:   make(chan struct{}),
	}
}

// Type returns "cli".
func (s *Stdin) Type() string { return StdinChannel }

// Start begins the read loop in a background goroutine. Safe to call once;
// a second call is a no-op.
func (s *Stdin) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go s.readLoop(ctx)
	s.status = Status{Connected: true, LastPing: time.Now().Unix()}
	return nil
}

// Stop closes the inbound message channel and releases the read loop.
func (s *Stdin) Stop(ctx context.Context) error {
	close(s.done)
	s.status = Status{Connected: false}
	return nil
}

func (s *Stdin) readLoop(ctx context.Context) {
	defer close(s.msgs)
	for s.in.Scan() {
		line := s.in.Text()
		if line == "" {
			continue
		}
		msg := models.InboundMessage{
			Channel:   StdinChannel,
			SenderID:  "local",
			ChatID:    s.chatID,
			Content:   line,
			Timestamp: time.Now().UnixMilli(),
		}
		select {
		case s.msgs <- msg:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Messages returns the channel of parsed inbound messages.
func (s *Stdin) Messages() <-chan models.InboundMessage { return s.msgs }

// Send writes a reply to out, returning any write error.
func (s *Stdin) Send(ctx context.Context, msg models.OutboundMessage) error {
	if s.prompt != "" {
		if _, err := fmt.Fprint(s.out, s.prompt); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(s.out, msg.Content)
	return err
}

// Status reports the adapter's last known connection state.
func (s *Stdin) Status() Status { return s.status }

// HealthCheck always reports healthy; a terminal connection has no remote
// endpoint to probe.
func (s *Stdin) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Healthy: true, LastCheck: time.Now()}
}
