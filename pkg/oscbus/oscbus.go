// Package oscbus publishes mixer strip parameters to a small set of
// subscribed OSC clients, grounded on the schollz-221e model's
// osc.NewClient/osc.NewMessage/Client.Send usage of
// github.com/hypebeast/go-osc.
package oscbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hypebeast/go-osc/osc"
)

// queueDepth bounds each client's pending-message buffer. A send that
// would block past this is dropped rather than stalling the caller.
const queueDepth = 256

type client struct {
	addr   string
	client *osc.Client
	queue  chan *osc.Message
	done   chan struct{}
}

func newClient(host string, port int) *client {
	c := &client{
		addr:   fmt.Sprintf("%s:%d", host, port),
		client: osc.NewClient(host, port),
		queue:  make(chan *osc.Message, queueDepth),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *client) run() {
	for {
		select {
		case msg := <-c.queue:
			if err := c.client.Send(msg); err != nil {
				slog.Warn("oscbus: send failed", "addr", c.addr, "err", err)
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) send(msg *osc.Message) {
	select {
	case c.queue <- msg:
	default:
		slog.Warn("oscbus: client queue full, dropping message", "addr", c.addr)
	}
}

func (c *client) close() {
	close(c.done)
}

// Registry tracks a bounded set of OSC subscribers and fans published
// strip parameters out to all of them. The callback installed with
// OnAddClient, when set, is invoked with every newly added client so
// callers can republish full state.
type Registry struct {
	mu       sync.Mutex
	basePath string
	tier     string
	max      int
	clients  map[string]*client

	onAdd func(host string, port int)
}

// NewRegistry creates a registry accepting up to max clients, with
// published paths of the form basePath/tier/<index>/<param> (e.g.
// "/mixer/channel/3/level"), matching mixer.c's g_oscpath layout.
func NewRegistry(max int, basePath, tier string) *Registry {
	return &Registry{
		basePath: basePath,
		tier:     tier,
		max:      max,
		clients:  make(map[string]*client),
	}
}

// OnAddClient installs a callback invoked after a client subscribes, so
// the caller can resync it with the engine's full current state.
func (r *Registry) OnAddClient(fn func(host string, port int)) {
	r.mu.Lock()
	r.onAdd = fn
	r.mu.Unlock()
}

// AddClient subscribes a new OSC endpoint. Returns false if the
// registry is already at capacity or the client is already registered.
func (r *Registry) AddClient(host string, port int) bool {
	r.mu.Lock()
	addr := fmt.Sprintf("%s:%d", host, port)
	if _, ok := r.clients[addr]; ok {
		r.mu.Unlock()
		return false
	}
	if len(r.clients) >= r.max {
		r.mu.Unlock()
		return false
	}
	r.clients[addr] = newClient(host, port)
	onAdd := r.onAdd
	r.mu.Unlock()

	if onAdd != nil {
		onAdd(host, port)
	}
	return true
}

// RemoveClient unsubscribes an OSC endpoint. Returns false if it was
// not registered.
func (r *Registry) RemoveClient(host string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := fmt.Sprintf("%s:%d", host, port)
	c, ok := r.clients[addr]
	if !ok {
		return false
	}
	c.close()
	delete(r.clients, addr)
	return true
}

// ClientCount reports how many clients are currently subscribed.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) stripPath(idx int, param string) string {
	return fmt.Sprintf("%s/%s/%d/%s", r.basePath, r.tier, idx, param)
}

func (r *Registry) broadcast(msg *osc.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.send(msg)
	}
}

// SendFloat publishes a float32 strip parameter.
func (r *Registry) SendFloat(idx int, param string, v float32) {
	if r.ClientCount() == 0 {
		return
	}
	msg := osc.NewMessage(r.stripPath(idx, param))
	msg.Append(v)
	r.broadcast(msg)
}

// SendInt publishes an int32 strip parameter (used for booleans encoded
// as 0/1).
func (r *Registry) SendInt(idx int, param string, v int32) {
	if r.ClientCount() == 0 {
		return
	}
	msg := osc.NewMessage(r.stripPath(idx, param))
	msg.Append(v)
	r.broadcast(msg)
}

// SendString publishes a string strip parameter.
func (r *Registry) SendString(idx int, param string, v string) {
	if r.ClientCount() == 0 {
		return
	}
	msg := osc.NewMessage(r.stripPath(idx, param))
	msg.Append(v)
	r.broadcast(msg)
}

// Close shuts down every subscribed client's send worker.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, c := range r.clients {
		c.close()
		delete(r.clients, addr)
	}
}
