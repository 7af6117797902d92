// Command pulse-bench measures event round-trip latency against an
// in-process host. It spins up a server with a simple echo surface,
// connects N websocket clients, and has each client send control events
// at a fixed rate, waiting for the patch that carries its value back
// before sending the next one.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-go/pulse/pkg/host"
	"github.com/pulse-go/pulse/pkg/protocol"
	"github.com/pulse-go/pulse/pkg/pulse"
	"github.com/pulse-go/pulse/pkg/reconcile"
)

type benchConfig struct {
	Clients      int
	Duration     time.Duration
	RPS          float64
	PayloadBytes int
	EventTimeout time.Duration
	JSONOutput   string
}

type benchCounters struct {
	eventsSent     atomic.Uint64
	eventsComplete atomic.Uint64
	patchMessages  atomic.Uint64
	patchBytes     atomic.Uint64
	eventBytes     atomic.Uint64
}

type benchErrors struct {
	handshakeFailures  atomic.Uint64
	eventWriteFailures atomic.Uint64
	decodeFailures     atomic.Uint64
	serverErrors       atomic.Uint64
	valueMissing       atomic.Uint64
	totalErrors        atomic.Uint64
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	srv := host.NewServer(echoApp, host.WithLogger(discardLogger()))
	defer srv.Shutdown()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	httpServer := &http.Server{Handler: srv}
	go func() {
		_ = httpServer.Serve(ln)
	}()
	defer func() {
		_ = httpServer.Shutdown(context.Background())
	}()

	wsURL := "ws://" + ln.Addr().String() + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Clients))
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var counters benchCounters
	var errCounts benchErrors

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		clientID := i
		go func() {
			defer wg.Done()
			if err := runClient(ctx, wsURL, clientID, cfg, &counters, &errCounts, samplesCh); err != nil {
				errCounts.totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	elapsed := time.Since(start)

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	report := buildReport(cfg, elapsed, samples, &counters, &errCounts)

	writeSummary(os.Stderr, report)
	if cfg.JSONOutput != "" {
		if err := writeJSON(cfg.JSONOutput, report); err != nil {
			log.Fatalf("write json: %v", err)
		}
	}
}

// echoApp mirrors a single text field back to the client, so every event
// produces a patch carrying the event's value.
var echoApp = host.AppFunc(func(s *host.Session) (string, error) {
	e, root := s.Engine(), s.Scope()
	if _, err := e.DeclareCell(root, "field", ""); err != nil {
		return "", err
	}
	_, err := e.DeclareComputation(root, "ui", func(rc *pulse.RunContext) (any, error) {
		v, err := rc.Read("field")
		if err != nil {
			return nil, err
		}
		return reconcile.Description{
			{ID: "field", Kind: "text", Value: v},
		}, nil
	})
	return "ui", err
})

func parseConfig(args []string) (benchConfig, error) {
	fs := flag.NewFlagSet("pulse-bench", flag.ContinueOnError)
	clients := fs.Int("clients", 50, "number of concurrent clients")
	duration := fs.Duration("duration", 10*time.Second, "total run duration")
	rps := fs.Float64("rps", 5, "events per second per client")
	payload := fs.Int("payload", 24, "event payload size in bytes")
	jsonOut := fs.String("json", "", "write the full report to this file")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	cfg := benchConfig{
		Clients:      *clients,
		Duration:     *duration,
		RPS:          *rps,
		PayloadBytes: *payload,
		JSONOutput:   *jsonOut,
	}
	if cfg.Clients < 1 {
		return benchConfig{}, fmt.Errorf("clients must be at least 1")
	}
	if cfg.RPS <= 0 {
		return benchConfig{}, fmt.Errorf("rps must be positive")
	}
	cfg.EventTimeout = eventTimeout(cfg.RPS)
	return cfg, nil
}

// eventTimeout bounds how long a client waits for its value to come back,
// scaled so slow rates get proportionally more slack.
func eventTimeout(rps float64) time.Duration {
	t := time.Duration(float64(4*time.Second) / rps)
	if t < 2*time.Second {
		t = 2 * time.Second
	}
	if t > 30*time.Second {
		t = 30 * time.Second
	}
	return t
}

func sampleBuffer(clients int) int {
	buf := clients * 4
	if buf < 1024 {
		buf = 1024
	}
	return buf
}

func runClient(
	ctx context.Context,
	wsURL string,
	clientID int,
	cfg benchConfig,
	counters *benchCounters,
	errCounts *benchErrors,
	samples chan<- time.Duration,
) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello, err := protocol.EncodeHello(&protocol.ClientHello{Version: protocol.ProtocolVersion})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("handshake write: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("handshake read: %w", err)
	}
	msg, err := protocol.DecodeMessage(raw)
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("handshake decode: %w", err)
	}
	if _, err := msg.Welcome(); err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("handshake: %w", err)
	}

	period := time.Duration(float64(time.Second) / cfg.RPS)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		seq++
		value := makeValue(clientID, seq, cfg.PayloadBytes)

		start := time.Now()
		data, err := protocol.EncodeEvent(&protocol.Event{Seq: seq, Control: "field", Value: value})
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			errCounts.eventWriteFailures.Add(1)
			return fmt.Errorf("event write: %w", err)
		}
		counters.eventsSent.Add(1)
		counters.eventBytes.Add(uint64(len(data)))

		conn.SetReadDeadline(time.Now().Add(cfg.EventTimeout))
		found, err := waitForValue(ctx, conn, value, counters, errCounts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				errCounts.valueMissing.Add(1)
				return fmt.Errorf("value not observed in patches")
			}
			return fmt.Errorf("wait for value: %w", err)
		}
		if !found {
			errCounts.valueMissing.Add(1)
			return fmt.Errorf("value not observed in patches")
		}

		rtt := time.Since(start)
		counters.eventsComplete.Add(1)
		samples <- rtt

		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func waitForValue(
	ctx context.Context,
	conn *websocket.Conn,
	value string,
	counters *benchCounters,
	errCounts *benchErrors,
) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}
		msg, err := protocol.DecodeMessage(raw)
		if err != nil {
			errCounts.decodeFailures.Add(1)
			return false, err
		}

		switch msg.Type {
		case protocol.MessagePatches:
			counters.patchMessages.Add(1)
			counters.patchBytes.Add(uint64(len(raw)))
			p, err := msg.Patches()
			if err != nil {
				errCounts.decodeFailures.Add(1)
				return false, err
			}
			if patchesCarry(p, value) {
				return true, nil
			}

		case protocol.MessageError:
			errCounts.serverErrors.Add(1)
			return false, fmt.Errorf("server error message")

		default:
			// Ping, pong, close: not part of the measurement.
		}
	}
}

// patchesCarry reports whether any patch in the batch delivers value,
// either as a direct set or inside a full render sequence.
func patchesCarry(p *protocol.Patches, value string) bool {
	for _, patch := range p.Patches {
		switch patch.Op {
		case protocol.PatchSet:
			if patch.Value == value {
				return true
			}
		case protocol.PatchRender:
			for _, c := range patch.Sequence {
				if c.Value == value {
					return true
				}
			}
		}
	}
	return false
}

func makeValue(clientID int, seq uint64, payloadBytes int) string {
	if payloadBytes <= 0 {
		return ""
	}
	seed := (uint64(clientID) << 32) ^ seq
	base := strings.ToLower(strconv.FormatUint(seed, 36))
	if len(base) >= payloadBytes {
		return base[len(base)-payloadBytes:]
	}
	return base + strings.Repeat("x", payloadBytes-len(base))
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// percentile expects samples sorted ascending; p is in [0, 100].
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(p / 100 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Clients        int     `json:"clients"`
	DurationSec    float64 `json:"duration_sec"`
	RPSPerClient   float64 `json:"rps_per_client"`
	EventsSent     uint64  `json:"events_sent"`
	EventsComplete uint64  `json:"events_complete"`
	EventsPerSec   float64 `json:"events_per_sec"`
	P50Ms          float64 `json:"p50_ms"`
	P95Ms          float64 `json:"p95_ms"`
	P99Ms          float64 `json:"p99_ms"`
	MaxMs          float64 `json:"max_ms"`
	PatchMessages  uint64  `json:"patch_messages"`
	PatchBytes     uint64  `json:"patch_bytes"`
	EventBytes     uint64  `json:"event_bytes"`
	Errors         uint64  `json:"errors"`
	Handshake      uint64  `json:"handshake_failures"`
	ValueMissing   uint64  `json:"value_missing"`
}

func buildReport(
	cfg benchConfig,
	elapsed time.Duration,
	sorted []time.Duration,
	counters *benchCounters,
	errCounts *benchErrors,
) benchReport {
	complete := counters.eventsComplete.Load()
	perSec := 0.0
	if elapsed > 0 {
		perSec = float64(complete) / elapsed.Seconds()
	}
	return benchReport{
		Clients:        cfg.Clients,
		DurationSec:    elapsed.Seconds(),
		RPSPerClient:   cfg.RPS,
		EventsSent:     counters.eventsSent.Load(),
		EventsComplete: complete,
		EventsPerSec:   perSec,
		P50Ms:          ms(percentile(sorted, 50)),
		P95Ms:          ms(percentile(sorted, 95)),
		P99Ms:          ms(percentile(sorted, 99)),
		MaxMs:          ms(percentile(sorted, 100)),
		PatchMessages:  counters.patchMessages.Load(),
		PatchBytes:     counters.patchBytes.Load(),
		EventBytes:     counters.eventBytes.Load(),
		Errors:         errCounts.totalErrors.Load(),
		Handshake:      errCounts.handshakeFailures.Load(),
		ValueMissing:   errCounts.valueMissing.Load(),
	}
}

func writeSummary(w io.Writer, r benchReport) {
	fmt.Fprintf(w, "pulse-bench: %d clients, %.1f rps/client, %.1fs\n", r.Clients, r.RPSPerClient, r.DurationSec)
	fmt.Fprintf(w, "  events    sent=%d complete=%d (%.1f/s)\n", r.EventsSent, r.EventsComplete, r.EventsPerSec)
	fmt.Fprintf(w, "  latency   p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms\n", r.P50Ms, r.P95Ms, r.P99Ms, r.MaxMs)
	fmt.Fprintf(w, "  patches   messages=%d bytes=%d\n", r.PatchMessages, r.PatchBytes)
	if r.Errors > 0 || r.Handshake > 0 || r.ValueMissing > 0 {
		fmt.Fprintf(w, "  errors    total=%d handshake=%d missing=%d\n", r.Errors, r.Handshake, r.ValueMissing)
	}
}

func writeJSON(path string, r benchReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
