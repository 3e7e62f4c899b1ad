// Package publish streams cell state transitions to a socket.io server.
package publish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/ctyconv"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the socket.io event transitions are emitted as.
const DefaultEvent = "cell"

// Options configures the connection.
type Options struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	Session            string
}

// Event is the payload emitted for every transition.
type Event struct {
	Session string          `json:"session,omitempty"`
	Module  string          `json:"module"`
	Cell    string          `json:"cell"`
	Name    string          `json:"name,omitempty"`
	Status  string          `json:"status"`
	Value   json.RawMessage `json:"value,omitempty"`
	Error   string          `json:"error,omitempty"`
	Version uint64          `json:"version"`
}

// Publisher emits cell transitions.
type Publisher struct {
	event   string
	session string
	emit    func(event string, data any)
	close   func()

	closeOnce sync.Once
}

// New creates a publisher over an arbitrary emit function.
func New(event, session string, emit func(event string, data any), closeFn func()) *Publisher {
	if event == "" {
		event = DefaultEvent
	}
	return &Publisher{event: event, session: session, emit: emit, close: closeFn}
}

// Dial connects to a socket.io server and returns a publisher emitting on it.
func Dial(ctx context.Context, opts Options) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", opts.URL)
	logger.Info("Connecting publisher...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("publish URL %q must include a scheme and host", opts.URL)
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sockOpts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(opts.Namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Publisher connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("%v", errs[0])
		}
		connectChan <- err
	})

	io.Connect()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	emit := func(event string, data any) { io.Emit(event, data) }
	closeFn := func() {
		logger.Info("Disconnecting publisher", "sid", io.Id())
		io.Disconnect()
	}
	return New(opts.Event, opts.Session, emit, closeFn), nil
}

// Publish emits one transition. Its signature matches runtime.SubscribeAll.
func (p *Publisher) Publish(c *cell.Cell, s nodestore.Snapshot) {
	p.emit(p.event, NewEvent(p.session, c, s))
}

// Close disconnects the publisher. It is safe to call more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.close != nil {
			p.close()
		}
	})
}

// NewEvent builds the payload for a transition. Values that cannot be
// encoded as JSON are sent as their printed form.
func NewEvent(session string, c *cell.Cell, s nodestore.Snapshot) Event {
	ev := Event{
		Session: session,
		Module:  string(c.ID.Module),
		Cell:    c.Label(),
		Name:    c.Name,
		Status:  s.Status.String(),
		Version: s.Version,
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	if s.Status == nodestore.StatusResolved {
		b, err := ctyconv.MarshalJSON(s.Value)
		if err != nil {
			b, _ = json.Marshal(ctyconv.Format(s.Value))
		}
		ev.Value = b
	}
	return ev
}
