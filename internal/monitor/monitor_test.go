package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    Quality
	}{
		{50 * time.Millisecond, QualityExcellent},
		{79 * time.Millisecond, QualityExcellent},
		{80 * time.Millisecond, QualityGood},
		{120 * time.Millisecond, QualityGood},
		{160 * time.Millisecond, QualityPoor},
		{200 * time.Millisecond, QualityPoor},
		{280 * time.Millisecond, QualityCritical},
		{350 * time.Millisecond, QualityCritical},
	}

	for _, c := range cases {
		if got := Classify(c.latency); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.latency, got, c.want)
		}
	}
}

func TestObserveJitter(t *testing.T) {
	m := New(func(Beat) {})
	m.Grace = time.Hour // keep the grace timer out of the way

	s1 := m.Observe(100*time.Millisecond, time.Now())
	if s1.Jitter != 0 {
		t.Errorf("first sample jitter = %v, want 0", s1.Jitter)
	}

	s2 := m.Observe(140*time.Millisecond, time.Now())
	if s2.Jitter != 40*time.Millisecond {
		t.Errorf("jitter = %v, want 40ms", s2.Jitter)
	}

	s3 := m.Observe(90*time.Millisecond, time.Now())
	if s3.Jitter != 50*time.Millisecond {
		t.Errorf("jitter = %v, want 50ms (absolute delta)", s3.Jitter)
	}
	m.Stop()
}

func TestObserveClampsNegativeLatency(t *testing.T) {
	m := New(func(Beat) {})
	m.Grace = time.Hour

	s := m.Observe(-20*time.Millisecond, time.Now())
	if s.Latency != 0 {
		t.Errorf("latency = %v, want 0", s.Latency)
	}
	if s.Quality != QualityExcellent {
		t.Errorf("quality = %s, want excellent", s.Quality)
	}
	m.Stop()
}

func TestGraceTimerFiresOnSilence(t *testing.T) {
	var mu sync.Mutex
	lost := 0

	m := New(func(Beat) {})
	m.Interval = time.Hour
	m.Grace = 20 * time.Millisecond
	m.OnLost = func() {
		mu.Lock()
		lost++
		mu.Unlock()
	}

	m.Start()
	defer m.Stop()

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if lost == 0 {
		t.Fatal("expected heartbeat-lost warning after grace expiry")
	}
}

func TestGraceTimerRearmedByEcho(t *testing.T) {
	var mu sync.Mutex
	lost := 0

	m := New(func(Beat) {})
	m.Interval = time.Hour
	m.Grace = 80 * time.Millisecond
	m.OnLost = func() {
		mu.Lock()
		lost++
		mu.Unlock()
	}

	m.Start()
	defer m.Stop()

	// Keep echoing faster than the grace period.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		m.Observe(10*time.Millisecond, time.Now())
	}

	mu.Lock()
	defer mu.Unlock()
	if lost != 0 {
		t.Fatalf("grace fired %d times despite regular echoes", lost)
	}
}
