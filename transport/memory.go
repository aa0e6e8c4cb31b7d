package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Defaults for Memory. ConnBufferCap bounds one direction of one stream;
// a full buffer surfaces as a partial write or ErrWouldBlock, the same
// way a real transport applies backpressure.
const (
	DefaultConnBufferCap = 256 * 1024
	DefaultBacklog       = 16
	DefaultQueueDepth    = 64
)

// MemoryConfig tunes the loopback transport.
type MemoryConfig struct {
	// CleanupWindow is how long after a stream tuple is released that
	// rebinding it reports ErrCleanupInProgress. Zero disables the
	// window.
	CleanupWindow time.Duration
	ConnBufferCap int
	Backlog       int
	QueueDepth    int
}

// Memory is a process-local loopback Transport. All endpoints live in one
// address space; connections are paired in-memory byte queues.
type Memory struct {
	mu         sync.Mutex
	nextHandle Handle
	handles    map[Handle]any
	listeners  map[Endpoint]*memListener
	dgrams     map[Endpoint]*memDgram
	bound      map[Endpoint]bindKind
	cooling    map[Endpoint]time.Time
	cfg        MemoryConfig
}

type bindKind uint8

const (
	boundConn bindKind = iota
	boundListener
)

type memConn struct {
	local  Endpoint
	remote Endpoint
	inbox  bytes.Buffer
	peer   *memConn
	closed bool
	// accepted-side conns share the listener's tuple and must not
	// release it on close
	ownsTuple bool
}

type memListener struct {
	tuple   Endpoint
	backlog []*memConn
	closed  bool
}

type memDgram struct {
	tuple  Endpoint
	queue  []Datagram
	closed bool
}

// NewMemory creates a loopback transport with default configuration.
func NewMemory() *Memory {
	return NewMemoryWithConfig(MemoryConfig{})
}

// NewMemoryWithConfig creates a loopback transport with the given tuning.
func NewMemoryWithConfig(cfg MemoryConfig) *Memory {
	if cfg.ConnBufferCap <= 0 {
		cfg.ConnBufferCap = DefaultConnBufferCap
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	return &Memory{
		nextHandle: 1,
		handles:    make(map[Handle]any),
		listeners:  make(map[Endpoint]*memListener),
		dgrams:     make(map[Endpoint]*memDgram),
		bound:      make(map[Endpoint]bindKind),
		cooling:    make(map[Endpoint]time.Time),
		cfg:        cfg,
	}
}

func (m *Memory) add(v any) Handle {
	h := m.nextHandle
	m.nextHandle++
	m.handles[h] = v
	return h
}

// checkTuple reports the binding condition for a stream tuple, clearing
// expired cleanup windows as it goes.
func (m *Memory) checkTuple(tuple Endpoint) error {
	if deadline, ok := m.cooling[tuple]; ok {
		if time.Now().Before(deadline) {
			return ErrCleanupInProgress
		}
		delete(m.cooling, tuple)
	}
	if kind, ok := m.bound[tuple]; ok {
		if kind == boundListener {
			return ErrDuplicateBinding
		}
		return ErrAlreadyInUse
	}
	return nil
}

func (m *Memory) releaseTuple(tuple Endpoint) {
	delete(m.bound, tuple)
	if m.cfg.CleanupWindow > 0 {
		m.cooling[tuple] = time.Now().Add(m.cfg.CleanupWindow)
	}
}

// Connect implements Transport. The timeout only matters for a full
// backlog, which this loopback reports immediately rather than waiting
// out.
func (m *Memory) Connect(remoteAddr string, remotePort uint16, localAddr string, localPort uint16, _ time.Duration) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	local := Endpoint{Address: localAddr, Port: localPort}
	remote := Endpoint{Address: remoteAddr, Port: remotePort}

	if err := m.checkTuple(local); err != nil {
		return 0, err
	}

	l, ok := m.listeners[remote]
	if !ok || l.closed {
		return 0, fmt.Errorf("connection refused: no listener at %s", remote)
	}
	if len(l.backlog) >= m.cfg.Backlog {
		return 0, fmt.Errorf("connection to %s timed out: backlog full", remote)
	}

	out := &memConn{local: local, remote: remote, ownsTuple: true}
	in := &memConn{local: remote, remote: local}
	out.peer = in
	in.peer = out

	m.bound[local] = boundConn
	l.backlog = append(l.backlog, in)

	return m.add(out), nil
}

func (m *Memory) conn(h Handle) (*memConn, error) {
	v, ok := m.handles[h]
	if !ok {
		return nil, fmt.Errorf("unknown handle %d", h)
	}
	c, ok := v.(*memConn)
	if !ok {
		return nil, fmt.Errorf("handle %d is not a connection", h)
	}
	return c, nil
}

// Send implements Transport.
func (m *Memory) Send(h Handle, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.conn(h)
	if err != nil {
		return 0, err
	}
	if c.closed {
		return 0, fmt.Errorf("send on closed handle %d", h)
	}
	if c.peer.closed {
		return 0, io.ErrClosedPipe
	}

	space := m.cfg.ConnBufferCap - c.peer.inbox.Len()
	if space <= 0 {
		return 0, ErrWouldBlock
	}
	if len(p) > space {
		p = p[:space]
	}
	c.peer.inbox.Write(p)
	return len(p), nil
}

// Receive implements Transport. A drained conn whose peer has closed
// returns io.EOF.
func (m *Memory) Receive(h Handle, maxBytes int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.conn(h)
	if err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("receive on closed handle %d", h)
	}
	if c.inbox.Len() == 0 {
		if c.peer.closed {
			return nil, io.EOF
		}
		return nil, ErrWouldBlock
	}

	n := c.inbox.Len()
	if maxBytes < n {
		n = maxBytes
	}
	out := make([]byte, n)
	c.inbox.Read(out)
	return out, nil
}

// Close implements Transport. Closing is idempotent for every handle
// kind; releasing a stream tuple opens its cleanup window.
func (m *Memory) Close(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.handles[h]
	if !ok {
		return nil
	}

	switch c := v.(type) {
	case *memConn:
		if !c.closed {
			c.closed = true
			if c.ownsTuple {
				m.releaseTuple(c.local)
			}
		}
	case *memListener:
		if !c.closed {
			c.closed = true
			delete(m.listeners, c.tuple)
			m.releaseTuple(c.tuple)
		}
	case *memDgram:
		if !c.closed {
			c.closed = true
			delete(m.dgrams, c.tuple)
		}
	}

	delete(m.handles, h)
	return nil
}

// Listen implements Transport.
func (m *Memory) Listen(addr string, port uint16) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tuple := Endpoint{Address: addr, Port: port}
	if err := m.checkTuple(tuple); err != nil {
		return 0, err
	}

	l := &memListener{tuple: tuple}
	m.listeners[tuple] = l
	m.bound[tuple] = boundListener
	return m.add(l), nil
}

// Accept implements Transport.
func (m *Memory) Accept(h Handle) (Endpoint, Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.handles[h]
	if !ok {
		return Endpoint{}, 0, fmt.Errorf("unknown handle %d", h)
	}
	l, ok := v.(*memListener)
	if !ok {
		return Endpoint{}, 0, fmt.Errorf("handle %d is not a listener", h)
	}
	if l.closed {
		return Endpoint{}, 0, errors.New("accept on closed listener")
	}
	if len(l.backlog) == 0 {
		return Endpoint{}, 0, ErrWouldBlock
	}

	c := l.backlog[0]
	l.backlog = l.backlog[1:]
	return c.remote, m.add(c), nil
}

// ListenDatagram implements Transport.
func (m *Memory) ListenDatagram(addr string, port uint16) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tuple := Endpoint{Address: addr, Port: port}
	if _, ok := m.dgrams[tuple]; ok {
		return 0, ErrDuplicateBinding
	}

	d := &memDgram{tuple: tuple}
	m.dgrams[tuple] = d
	return m.add(d), nil
}

// SendDatagram implements Transport. Datagrams to a tuple nobody is
// receiving at, and datagrams past the queue depth, are silently
// dropped; the byte count is still reported as accepted.
func (m *Memory) SendDatagram(remoteAddr string, remotePort uint16, localAddr string, localPort uint16, payload []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	local := Endpoint{Address: localAddr, Port: localPort}
	if _, ok := m.dgrams[local]; ok {
		return 0, ErrAlreadyInUse
	}

	remote := Endpoint{Address: remoteAddr, Port: remotePort}
	d, ok := m.dgrams[remote]
	if ok && !d.closed && len(d.queue) < m.cfg.QueueDepth {
		payloadCopy := make([]byte, len(payload))
		copy(payloadCopy, payload)
		d.queue = append(d.queue, Datagram{Remote: local, Payload: payloadCopy})
	}
	return len(payload), nil
}

// ReceiveDatagram implements Transport.
func (m *Memory) ReceiveDatagram(h Handle) (Datagram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.handles[h]
	if !ok {
		return Datagram{}, fmt.Errorf("unknown handle %d", h)
	}
	d, ok := v.(*memDgram)
	if !ok {
		return Datagram{}, fmt.Errorf("handle %d is not a datagram endpoint", h)
	}
	if d.closed {
		return Datagram{}, errors.New("receive on closed datagram endpoint")
	}
	if len(d.queue) == 0 {
		return Datagram{}, ErrWouldBlock
	}

	dg := d.queue[0]
	d.queue = d.queue[1:]
	return dg, nil
}
