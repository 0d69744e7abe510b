// lensmon-watch: tail the backend's live stream
//
// Connects to /ws/live and prints every reading and alert as it arrives,
// reconnecting with backoff when the backend goes away.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lensmon/internal/config"
	"github.com/teslashibe/go-lensmon/pkg/hub"
)

var (
	backendURL = flag.String("backend", config.DefaultBackendURL, "Backend base URL")
	metric     = flag.String("metric", "", "Only show this metric")
	alertsOnly = flag.Bool("alerts", false, "Only show alerts")
	rawJSON    = flag.Bool("json", false, "Print raw envelopes")
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 15 * time.Second
)

type reading struct {
	Reading struct {
		Value  float64 `json:"value"`
		Device string  `json:"device"`
		Frame  int     `json:"frame"`
	} `json:"reading"`
	Analysis struct {
		Category string `json:"category"`
	} `json:"analysis"`
}

func main() {
	flag.Parse()

	wsURL, err := liveURL(config.BackendURL(*backendURL))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n\n", wsURL)

	backoff := minBackoff
	for ctx.Err() == nil {
		connected, err := watch(ctx, wsURL, handleMessage)
		if ctx.Err() != nil {
			break
		}
		if connected {
			backoff = minBackoff
		}
		fmt.Printf("⚠️  %v; reconnecting in %v\n", err, backoff)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	fmt.Println("\n👋 Goodbye!")
}

// liveURL converts an http(s) base URL to the ws(s) live endpoint.
func liveURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/live"
	return u.String(), nil
}

// watch reads one connection until it drops, passing each frame to handle.
// connected reports whether the dial succeeded.
func watch(ctx context.Context, wsURL string, handle func([]byte)) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-closed:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		handle(data)
	}
}

func handleMessage(data []byte) {
	var env struct {
		Kind   hub.Kind        `json:"kind"`
		Metric string          `json:"metric"`
		At     time.Time       `json:"at"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if *metric != "" && env.Metric != "" && env.Metric != *metric {
		return
	}
	if *alertsOnly && env.Kind != hub.KindAlert {
		return
	}
	if *rawJSON {
		fmt.Println(string(data))
		return
	}
	printEnvelope(env.Kind, env.Metric, env.At, env.Data)
}

func printEnvelope(kind hub.Kind, metric string, at time.Time, data json.RawMessage) {
	ts := at.Local().Format("15:04:05")
	switch kind {
	case hub.KindHello:
		fmt.Printf("🔌 [%s] connected\n", ts)
	case hub.KindAlert:
		fmt.Printf("🚨 [%s] %s alert\n", ts, metric)
	case hub.KindReading:
		var r reading
		if err := json.Unmarshal(data, &r); err != nil {
			return
		}
		fmt.Printf("📈 [%s] %-10s %8.3f  %-6s  %s #%d\n",
			ts, metric, r.Reading.Value, r.Analysis.Category, r.Reading.Device, r.Reading.Frame)
	}
}
