package main

import (
	"flag"
	"fmt"
	"os"

	sandnet "github.com/wippyai/sandnet"
	"github.com/wippyai/sandnet/config"
	"github.com/wippyai/sandnet/dial"
	"github.com/wippyai/sandnet/listen"
	"github.com/wippyai/sandnet/socket"
	"github.com/wippyai/sandnet/transport"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		port        = flag.Uint("port", 0, "Listener port (default: first port of the range)")
		count       = flag.Int("n", 3, "Number of round trips to run")
		message     = flag.String("msg", "ping", "Message payload")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	listenPort := uint16(*port)
	if listenPort == 0 {
		listenPort = cfg.FirstPort
	}

	if *interactive {
		if err := runInteractive(cfg, listenPort); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, listenPort, *count, *message); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires a stack over the in-memory transport, starts an echo
// listener, and drives count round trips against it.
func run(cfg *config.Config, port uint16, count int, message string) error {
	stack, err := sandnet.New(cfg, sandnet.Options{})
	if err != nil {
		return err
	}
	defer stack.Shutdown()

	fmt.Printf("Port range: %d-%d at %s\n", cfg.FirstPort, cfg.LastPort, cfg.LocalAddress)

	stop, err := stack.Listeners.ListenTCP(cfg.LocalAddress, port, echo, listen.Options{})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer stop(true)
	fmt.Printf("Echo listener on %s:%d\n\n", cfg.LocalAddress, port)

	conn, err := stack.Dialer.Connect(cfg.LocalAddress, port, dial.Options{})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	fmt.Printf("Connected: %s -> %s\n\n", endpointString(conn.LocalEndpoint()), endpointString(conn.RemoteEndpoint()))

	for i := 0; i < count; i++ {
		payload := fmt.Sprintf("%s %d", message, i+1)
		if _, err := conn.SendAll([]byte(payload)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		reply, err := conn.ReceiveAll(len(payload))
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		fmt.Printf("  -> %q\n  <- %q\n", payload, reply)
	}

	return nil
}

// echo copies everything back to the peer until it disconnects.
func echo(_ transport.Endpoint, conn *socket.Socket) {
	defer conn.Close()
	for {
		data, err := conn.Receive(socket.MinReadChunk)
		if err != nil {
			return
		}
		if _, err := conn.SendAll(data); err != nil {
			return
		}
	}
}

func endpointString(ep transport.Endpoint) string {
	return fmt.Sprintf("%s:%d", ep.Address, ep.Port)
}
