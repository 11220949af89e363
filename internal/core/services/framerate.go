package services

import (
	"sync"
	"time"

	"homestream/internal/core/domain"
	"homestream/pkg/ring"

	"golang.org/x/time/rate"
)

// metricsWindow is the number of samples kept in each rolling window.
const metricsWindow = 10

// LimiterConfig configures one rendering surface's rate limiter.
type LimiterConfig struct {
	MaxFPS          int           // display ceiling, >= 1
	MinFPS          int           // adaptive floor, ignored unless Adaptive
	Adaptive        bool          // enable render-time driven adjustment
	RenderWindow    int           // render samples per adaptive step
	LowFPSThreshold float64       // warning threshold, default 3
	HighLatency     time.Duration // warning threshold, default 2s
	StatsInterval   time.Duration // min spacing of upstream stats pushes
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.MaxFPS < 1 {
		c.MaxFPS = 1
	}
	if c.MinFPS < 1 {
		c.MinFPS = 1
	}
	if c.RenderWindow < 2 {
		c.RenderWindow = metricsWindow
	}
	if c.LowFPSThreshold == 0 {
		c.LowFPSThreshold = 3
	}
	if c.HighLatency == 0 {
		c.HighLatency = 2 * time.Second
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 5 * time.Second
	}
	return c
}

// Limiter decides whether an arriving frame is displayed and derives
// rolling FPS and latency statistics from the frames that were. One
// Limiter serves one rendering surface.
type Limiter struct {
	mu  sync.Mutex
	cfg LimiterConfig

	effectiveFPS  int
	minInterval   time.Duration
	lastDisplayed time.Time

	arrivals  *ring.Buffer[time.Time]
	latencies *ring.Buffer[time.Duration]
	renders   *ring.Buffer[time.Duration]

	totalFrames   int64
	droppedFrames int64

	exporter *rate.Limiter
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	cfg = cfg.withDefaults()
	l := &Limiter{
		cfg:       cfg,
		arrivals:  ring.New[time.Time](metricsWindow),
		latencies: ring.New[time.Duration](metricsWindow),
		renders:   ring.New[time.Duration](cfg.RenderWindow),
		exporter:  rate.NewLimiter(rate.Every(cfg.StatsInterval), 1),
	}
	l.setEffectiveFPS(cfg.MaxFPS)
	return l
}

func (l *Limiter) setEffectiveFPS(fps int) {
	l.effectiveFPS = fps
	l.minInterval = time.Second / time.Duration(fps)
}

// Observe records one frame arrival and reports whether it should be
// displayed. Displayed frames feed the rolling windows; the rest only
// increment the dropped counter. captureTime may be zero when the message
// carried no parseable timestamp.
func (l *Limiter) Observe(captureTime, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalFrames++

	if !l.lastDisplayed.IsZero() && now.Sub(l.lastDisplayed) < l.minInterval {
		l.droppedFrames++
		return false
	}

	l.lastDisplayed = now
	l.arrivals.Push(now)
	if !captureTime.IsZero() {
		l.latencies.Push(now.Sub(captureTime))
	}
	return true
}

// RecordRenderTime feeds the adaptive controller with the measured duration
// of one render. Once the window fills, the effective ceiling is nudged one
// step down when rendering cannot keep up with the frame budget, one step
// up when there is clear headroom, clamped to [MinFPS, MaxFPS].
func (l *Limiter) RecordRenderTime(d time.Duration) {
	if !l.cfg.Adaptive {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.renders.Push(d)
	if l.renders.Len() < l.cfg.RenderWindow {
		return
	}

	var total time.Duration
	for _, r := range l.renders.Values() {
		total += r
	}
	avg := total / time.Duration(l.renders.Len())
	budget := time.Second / time.Duration(l.effectiveFPS)

	switch {
	case avg > budget && l.effectiveFPS > l.cfg.MinFPS:
		l.setEffectiveFPS(l.effectiveFPS - 1)
	case avg < budget*3/4 && l.effectiveFPS < l.cfg.MaxFPS:
		l.setEffectiveFPS(l.effectiveFPS + 1)
	}
	l.renders.Reset()
}

// EffectiveFPS returns the current display ceiling (equal to MaxFPS unless
// the adaptive controller moved it).
func (l *Limiter) EffectiveFPS() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.effectiveFPS
}

// Snapshot derives the current metrics for the surface.
func (l *Limiter) Snapshot(deviceID domain.DeviceID) domain.StreamMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := domain.StreamMetrics{
		DeviceID:      deviceID,
		TotalFrames:   l.totalFrames,
		DroppedFrames: l.droppedFrames,
		Timestamp:     time.Now(),
	}

	if l.arrivals.Len() >= 2 {
		first, _ := l.arrivals.First()
		last, _ := l.arrivals.Last()
		if span := last.Sub(first); span > 0 {
			m.CurrentFPS = float64(l.arrivals.Len()-1) / span.Seconds()
		}
	}

	if n := l.latencies.Len(); n > 0 {
		var total time.Duration
		min, _ := l.latencies.First()
		max := min
		for _, d := range l.latencies.Values() {
			total += d
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
		m.AverageLatency = total / time.Duration(n)
		m.MinLatency = min
		m.MaxLatency = max
	}

	m.LowFPS = m.CurrentFPS < l.cfg.LowFPSThreshold
	m.HighLatency = m.AverageLatency > l.cfg.HighLatency
	return m
}

// AllowExport gates upstream stats pushes so telemetry cannot flood the
// connection; at most one export per StatsInterval.
func (l *Limiter) AllowExport() bool {
	return l.exporter.Allow()
}
