// Package connectivity tracks whether the calendar API is reachable. The
// daemon gates sync cycles on it so offline stretches queue work instead of
// burning retries.
package connectivity

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Monitor probes a URL on an interval and exposes the latest online state.
// Subscribers get a notification on every state transition.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	logger   *log.Logger

	mu     sync.Mutex
	online bool
	subs   map[chan bool]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Monitor. Zero values pick defaults.
type Options struct {
	ProbeURL string
	Interval time.Duration
	Client   *http.Client
	Logger   *log.Logger
}

// New creates a Monitor. It starts in the online state so the first cycle
// after boot is not blocked waiting for a probe.
func New(opts Options) *Monitor {
	if opts.ProbeURL == "" {
		opts.ProbeURL = "https://www.googleapis.com/generate_204"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Monitor{
		probeURL: opts.ProbeURL,
		interval: opts.Interval,
		client:   opts.Client,
		logger:   opts.Logger,
		online:   true,
		subs:     make(map[chan bool]struct{}),
	}
}

// Start launches the probe loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop ends the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Online reports the most recent probe result.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that receives the new state on every
// transition, plus a cancel func that must be called to release it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.setOnline(false)
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.setOnline(false)
		return
	}
	resp.Body.Close()
	m.setOnline(resp.StatusCode < 500)
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var targets []chan bool
	if changed {
		for ch := range m.subs {
			targets = append(targets, ch)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.logger.Printf("connectivity restored")
	} else {
		m.logger.Printf("connectivity lost, sync paused")
	}
	for _, ch := range targets {
		// Drop rather than block when a subscriber lags.
		select {
		case ch <- online:
		default:
		}
	}
}
