// Package monitor computes round-trip latency, jitter and a discrete
// connection-quality tier from periodic heartbeat echoes. It has no knowledge
// of the transport; the caller wires Send and the echo feed.
package monitor

import (
	"sync"
	"time"
)

// Quality is the discrete connection-quality tier derived from latency.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityCritical  Quality = "critical"
)

// Latency thresholds for quality classification.
const (
	excellentBelow = 80 * time.Millisecond
	goodBelow      = 160 * time.Millisecond
	poorBelow      = 280 * time.Millisecond
)

const (
	// DefaultInterval is how often a heartbeat is emitted.
	DefaultInterval = 5 * time.Second

	// DefaultGrace is how long the monitor waits for an echo before
	// raising a heartbeat-lost warning. Matches the grace period the
	// coordinator hands out in the join ack.
	DefaultGrace = 15 * time.Second
)

// Classify maps a round-trip latency to a quality tier.
func Classify(latency time.Duration) Quality {
	switch {
	case latency < excellentBelow:
		return QualityExcellent
	case latency < goodBelow:
		return QualityGood
	case latency < poorBelow:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// Sample is one processed heartbeat echo.
type Sample struct {
	Latency time.Duration
	Jitter  time.Duration
	Quality Quality
	At      time.Time
}

// Beat is the outbound heartbeat: the client timestamp plus the last tier the
// monitor computed, so the coordinator can log it without re-deriving.
type Beat struct {
	ClientTime time.Time
	Quality    Quality
}

// Monitor emits heartbeats on a fixed interval and turns echoes into samples.
// A grace timer is re-armed after every echo; if it fires, OnLost is called
// once per silence (the session is not torn down).
type Monitor struct {
	Interval time.Duration
	Grace    time.Duration

	// Send emits one heartbeat. Required before Start.
	Send func(Beat)

	// OnSample is invoked for every processed echo. Optional.
	OnSample func(Sample)

	// OnLost is invoked when the grace timer expires. Optional.
	OnLost func()

	mu       sync.Mutex
	last     Sample
	hasLast  bool
	grace    *time.Timer
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a monitor with the default interval and grace period.
func New(send func(Beat)) *Monitor {
	return &Monitor{
		Interval: DefaultInterval,
		Grace:    DefaultGrace,
		Send:     send,
		stop:     make(chan struct{}),
	}
}

// Start begins the heartbeat loop. It returns immediately; Stop ends the loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.armGraceLocked()
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()

		m.emit()
		for {
			select {
			case <-ticker.C:
				m.emit()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the heartbeat loop and disarms the grace timer.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	if m.grace != nil {
		m.grace.Stop()
	}
	m.mu.Unlock()
}

func (m *Monitor) emit() {
	m.mu.Lock()
	q := m.last.Quality
	if !m.hasLast {
		q = QualityExcellent
	}
	m.mu.Unlock()

	m.Send(Beat{ClientTime: time.Now(), Quality: q})
}

// Observe processes one heartbeat echo. Latency is the server-computed
// round trip; jitter is the absolute delta against the previous sample.
func (m *Monitor) Observe(latency time.Duration, at time.Time) Sample {
	if latency < 0 {
		latency = 0
	}

	m.mu.Lock()
	jitter := time.Duration(0)
	if m.hasLast {
		jitter = latency - m.last.Latency
		if jitter < 0 {
			jitter = -jitter
		}
	}
	s := Sample{
		Latency: latency,
		Jitter:  jitter,
		Quality: Classify(latency),
		At:      at,
	}
	m.last = s
	m.hasLast = true
	m.armGraceLocked()
	m.mu.Unlock()

	if m.OnSample != nil {
		m.OnSample(s)
	}
	return s
}

// Last returns the most recent sample, if any.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

func (m *Monitor) armGraceLocked() {
	if m.grace != nil {
		m.grace.Stop()
	}
	m.grace = time.AfterFunc(m.Grace, func() {
		if m.OnLost != nil {
			m.OnLost()
		}
	})
}
