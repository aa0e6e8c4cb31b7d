package dial

import (
	"testing"
	"time"

	"github.com/wippyai/sandnet/env"
	snerrors "github.com/wippyai/sandnet/errors"
	"github.com/wippyai/sandnet/registry"
	"github.com/wippyai/sandnet/transport"
)

// connStub scripts Connect and SendDatagram outcomes per attempt and
// records which local ports were tried.
type connStub struct {
	connectErrs []error // nil entry = success; drained front to back
	dgramErrs   []error
	tried       []uint16
	dgramTried  []uint16
	advance     time.Duration // fake time consumed per connect attempt
	clock       *env.FakeClock
	nextHandle  transport.Handle
}

func (s *connStub) Connect(_ string, _ uint16, _ string, localPort uint16, _ time.Duration) (transport.Handle, error) {
	s.tried = append(s.tried, localPort)
	if s.advance > 0 && s.clock != nil {
		s.clock.Advance(s.advance)
	}
	var err error
	if len(s.connectErrs) > 0 {
		err = s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
	}
	if err != nil {
		return 0, err
	}
	s.nextHandle++
	return s.nextHandle, nil
}

func (s *connStub) SendDatagram(_ string, _ uint16, _ string, localPort uint16, payload []byte) (int, error) {
	s.dgramTried = append(s.dgramTried, localPort)
	var err error
	if len(s.dgramErrs) > 0 {
		err = s.dgramErrs[0]
		s.dgramErrs = s.dgramErrs[1:]
	}
	if err != nil {
		return 0, err
	}
	return len(payload), nil
}

func (s *connStub) Send(transport.Handle, []byte) (int, error) { return 0, transport.ErrWouldBlock }
func (s *connStub) Receive(transport.Handle, int) ([]byte, error) {
	return nil, transport.ErrWouldBlock
}
func (s *connStub) Close(transport.Handle) error { return nil }
func (s *connStub) Listen(string, uint16) (transport.Handle, error) {
	return 0, transport.ErrWouldBlock
}
func (s *connStub) Accept(transport.Handle) (transport.Endpoint, transport.Handle, error) {
	return transport.Endpoint{}, 0, transport.ErrWouldBlock
}
func (s *connStub) ListenDatagram(string, uint16) (transport.Handle, error) {
	return 0, transport.ErrWouldBlock
}
func (s *connStub) ReceiveDatagram(transport.Handle) (transport.Datagram, error) {
	return transport.Datagram{}, transport.ErrWouldBlock
}

func testRegistry() *registry.Registry {
	return registry.NewRegistry(registry.Config{
		LocalAddress: "10.0.0.1",
		FirstPort:    5000,
		LastPort:     5002,
	})
}

func testDialer(stub *connStub, reg *registry.Registry, clock *env.FakeClock) *Dialer {
	stub.clock = clock
	return NewDialer(stub, reg, Config{
		Resolver: env.StaticResolver{"node.example": "10.0.0.5"},
		Clock:    clock,
	})
}

func TestDialer_ConnectRotatesAscending(t *testing.T) {
	stub := &connStub{connectErrs: []error{transport.ErrAlreadyInUse, nil}}
	reg := testRegistry()
	d := testDialer(stub, reg, env.NewFakeClock())

	sock, err := d.Connect("10.0.0.5", 80, Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if len(stub.tried) != 2 || stub.tried[0] != 5000 || stub.tried[1] != 5001 {
		t.Errorf("expected strict ascending rotation [5000 5001], got %v", stub.tried)
	}
	if sock.LocalEndpoint().Port != 5001 {
		t.Errorf("expected local port 5001, got %d", sock.LocalEndpoint().Port)
	}

	// outbound connections never register a listener tuple
	if reg.Held(registry.TCP, "10.0.0.1", 5000) || reg.Held(registry.TCP, "10.0.0.1", 5001) {
		t.Error("outbound connect must not register tuples")
	}
}

func TestDialer_ConnectResolvesHostname(t *testing.T) {
	stub := &connStub{}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	sock, err := d.Connect("node.example", 80, Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sock.RemoteEndpoint().Address != "10.0.0.5" {
		t.Errorf("hostname not resolved: %v", sock.RemoteEndpoint())
	}
}

func TestDialer_ConnectUnknownHost(t *testing.T) {
	d := testDialer(&connStub{}, testRegistry(), env.NewFakeClock())

	_, err := d.Connect("missing.example", 80, Options{})
	if err == nil {
		t.Fatal("expected resolution failure")
	}
}

func TestDialer_ConnectSelfLoopSkipped(t *testing.T) {
	stub := &connStub{}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	// remote tuple equals the first local candidate
	_, err := d.Connect("10.0.0.1", 5000, Options{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(stub.tried) != 1 || stub.tried[0] != 5001 {
		t.Errorf("self-loop candidate should be skipped, tried %v", stub.tried)
	}
}

func TestDialer_ConnectPinnedPortConflict(t *testing.T) {
	stub := &connStub{connectErrs: []error{transport.ErrAlreadyInUse}}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.Connect("10.0.0.5", 80, Options{LocalPort: 5000})
	if !snerrors.IsKind(err, snerrors.KindAlreadyInUse) {
		t.Fatalf("expected already_in_use, got %v", err)
	}
	if len(stub.tried) != 1 {
		t.Errorf("hard conflict on pinned port must not retry, tried %v", stub.tried)
	}
}

func TestDialer_ConnectPinnedPortCleanupRetries(t *testing.T) {
	stub := &connStub{connectErrs: []error{
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		nil,
	}}
	clock := env.NewFakeClock()
	d := testDialer(stub, testRegistry(), clock)

	sock, err := d.Connect("10.0.0.5", 80, Options{LocalPort: 5000})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sock.LocalEndpoint().Port != 5000 {
		t.Errorf("pinned port must not rotate, got %d", sock.LocalEndpoint().Port)
	}
	if clock.Sleeps() != 2 {
		t.Errorf("expected 2 backoff sleeps, got %d", clock.Sleeps())
	}
}

func TestDialer_ConnectExhaustionHardConflicts(t *testing.T) {
	stub := &connStub{connectErrs: []error{
		transport.ErrAlreadyInUse,
		transport.ErrDuplicateBinding,
		transport.ErrAlreadyInUse,
	}}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.Connect("10.0.0.5", 80, Options{})
	if !snerrors.IsKind(err, snerrors.KindResourceExhausted) {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
	want := []uint16{5000, 5001, 5002}
	if len(stub.tried) != len(want) {
		t.Fatalf("expected %v, tried %v", want, stub.tried)
	}
	for i, p := range want {
		if stub.tried[i] != p {
			t.Errorf("attempt %d: expected port %d, got %d", i, p, stub.tried[i])
		}
	}
}

func TestDialer_ConnectCleanupAbortsNearDeadline(t *testing.T) {
	// every attempt reports cleanup-in-progress; the loop must stop
	// retrying once remaining time sinks to the threshold and surface
	// the transient condition instead of a timeout
	stub := &connStub{connectErrs: []error{
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
		transport.ErrCleanupInProgress,
	}}
	clock := env.NewFakeClock()
	reg := registry.NewRegistry(registry.Config{
		LocalAddress: "10.0.0.1",
		FirstPort:    5000,
		LastPort:     5000,
	})
	d := testDialer(stub, reg, clock)

	start := clock.Now()
	_, err := d.Connect("10.0.0.5", 80, Options{Timeout: 2 * time.Second})
	if !snerrors.IsKind(err, snerrors.KindCleanupInProgress) {
		t.Fatalf("expected cleanup_in_progress, got %v", err)
	}

	elapsed := clock.Now().Sub(start)
	if elapsed >= 2*time.Second {
		t.Errorf("loop should abort before the deadline, ran %v", elapsed)
	}
	if len(stub.tried) == 0 {
		t.Error("expected at least one attempt")
	}
}

func TestDialer_ConnectTimeout(t *testing.T) {
	// the only attempt consumes the whole deadline with a hard
	// conflict; re-loop finds no time left and no cleanup observed
	stub := &connStub{
		connectErrs: []error{transport.ErrAlreadyInUse},
		advance:     3 * time.Second,
	}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.Connect("10.0.0.5", 80, Options{Timeout: 2 * time.Second})
	if !snerrors.IsKind(err, snerrors.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDialer_ConnectRegistryExhausted(t *testing.T) {
	reg := testRegistry()
	for _, p := range []uint16{5000, 5001, 5002} {
		if err := reg.Register(registry.TCP, "10.0.0.1", p); err != nil {
			t.Fatalf("register %d: %v", p, err)
		}
	}
	d := testDialer(&connStub{}, reg, env.NewFakeClock())

	_, err := d.Connect("10.0.0.5", 80, Options{})
	if !snerrors.IsKind(err, snerrors.KindResourceExhausted) {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
}

func TestDialer_ConnectInvalidArguments(t *testing.T) {
	d := testDialer(&connStub{}, testRegistry(), env.NewFakeClock())

	cases := []struct {
		name string
		host string
		port uint16
		opts Options
	}{
		{"empty host", "", 80, Options{}},
		{"zero remote port", "10.0.0.5", 0, Options{}},
		{"negative timeout", "10.0.0.5", 80, Options{Timeout: -time.Second}},
		{"bad local address", "10.0.0.5", 80, Options{LocalAddress: "not-an-ip"}},
	}
	for _, c := range cases {
		if _, err := d.Connect(c.host, c.port, c.opts); !snerrors.IsKind(err, snerrors.KindInvalidArgument) {
			t.Errorf("%s: expected invalid_argument, got %v", c.name, err)
		}
	}
}

func TestDialer_ConnectSimultaneousAutoPortsDistinct(t *testing.T) {
	// over a real (memory) transport, the second auto-port connect must
	// rotate off the tuple the first one occupies
	mem := transport.NewMemory()
	if _, err := mem.Listen("10.0.0.5", 80); err != nil {
		t.Fatalf("listen: %v", err)
	}

	reg := testRegistry()
	d := NewDialer(mem, reg, Config{
		Resolver: env.StaticResolver{},
		Clock:    env.NewFakeClock(),
	})

	a, err := d.Connect("10.0.0.5", 80, Options{})
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	b, err := d.Connect("10.0.0.5", 80, Options{})
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if a.LocalEndpoint().Port == b.LocalEndpoint().Port {
		t.Errorf("both connections chose local port %d", a.LocalEndpoint().Port)
	}
}

func TestDialer_SendMessage(t *testing.T) {
	stub := &connStub{}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	n, err := d.SendMessage("10.0.0.5", 9000, []byte("ping"), Options{})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes accepted, got %d", n)
	}
	if len(stub.dgramTried) != 1 || stub.dgramTried[0] != 5000 {
		t.Errorf("expected first candidate 5000, tried %v", stub.dgramTried)
	}
}

func TestDialer_SendMessageRotatesOnConflict(t *testing.T) {
	stub := &connStub{dgramErrs: []error{transport.ErrAlreadyInUse, nil}}
	clock := env.NewFakeClock()
	d := testDialer(stub, testRegistry(), clock)

	n, err := d.SendMessage("10.0.0.5", 9000, []byte("ping"), Options{})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes, got %d", n)
	}
	if len(stub.dgramTried) != 2 || stub.dgramTried[1] != 5001 {
		t.Errorf("expected rotation to 5001, tried %v", stub.dgramTried)
	}
	if clock.Sleeps() != 0 {
		t.Error("message sender has no backoff loop")
	}
}

func TestDialer_SendMessageExhaustion(t *testing.T) {
	stub := &connStub{dgramErrs: []error{
		transport.ErrAlreadyInUse,
		transport.ErrAlreadyInUse,
		transport.ErrAlreadyInUse,
	}}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.SendMessage("10.0.0.5", 9000, []byte("x"), Options{})
	if !snerrors.IsKind(err, snerrors.KindResourceExhausted) {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
}

func TestDialer_SendMessagePinnedConflict(t *testing.T) {
	stub := &connStub{dgramErrs: []error{transport.ErrDuplicateBinding}}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.SendMessage("10.0.0.5", 9000, []byte("x"), Options{LocalPort: 5000})
	if !snerrors.IsKind(err, snerrors.KindDuplicateBinding) {
		t.Fatalf("expected duplicate_binding, got %v", err)
	}
	if len(stub.dgramTried) != 1 {
		t.Errorf("pinned port must not rotate, tried %v", stub.dgramTried)
	}
}

func TestDialer_SendMessageSelfLoopSkipped(t *testing.T) {
	stub := &connStub{}
	d := testDialer(stub, testRegistry(), env.NewFakeClock())

	_, err := d.SendMessage("10.0.0.1", 5000, []byte("x"), Options{})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(stub.dgramTried) != 1 || stub.dgramTried[0] != 5001 {
		t.Errorf("self-loop candidate should be skipped, tried %v", stub.dgramTried)
	}
}
