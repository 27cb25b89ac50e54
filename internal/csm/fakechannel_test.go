package csm_test

import "sync"

// fakeChannel is an in-memory csm.Channel used by the package's tests: it
// records every sent event instead of writing to a socket, and tracks
// whether it has been closed so Register/force_disconnect can be asserted.
type fakeChannel struct {
	id string

	mu     sync.Mutex
	sent   []sentEvent
	closed bool
}

type sentEvent struct {
	Name    string
	Payload map[string]any
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(event string, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEvent{Name: event, Payload: payload})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) events() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) names() []string {
	evs := c.events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
