package performance

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Profiler times resolver and loader operations and counts their outcomes.
// Every recording is mirrored to the Prometheus collectors of the profiler.
type Profiler struct {
	mu        sync.RWMutex
	metrics   map[string]*Metric
	enabled   bool
	startTime time.Time
	prom      *promMetrics
}

// Metric holds timing statistics and outcome counts for one operation
type Metric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastCall  time.Time
	Outcomes  map[string]int64
	mu        sync.Mutex
}

// Operation is a running timer started by Profiler.Start
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a profiler. A disabled profiler records nothing
// until Enable is called.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		metrics:   make(map[string]*Metric),
		enabled:   enabled,
		startTime: time.Now(),
		prom:      newPromMetrics(),
	}
}

// Start begins timing an operation. It returns nil when profiling is off;
// End on a nil Operation is a no-op.
func (p *Profiler) Start(name string) *Operation {
	if p == nil || !p.IsEnabled() {
		return nil
	}
	return &Operation{profiler: p, name: name, start: time.Now()}
}

// End stops the timer and records the duration
func (o *Operation) End() {
	if o == nil || !o.profiler.IsEnabled() {
		return
	}
	o.profiler.record(o.name, time.Since(o.start))
}

// Record adds a measured duration for an operation
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil || !p.IsEnabled() {
		return
	}
	p.record(name, duration)
}

// Count increments an outcome counter (for example "hit" or "miss") of an operation
func (p *Profiler) Count(name, outcome string) {
	if p == nil || !p.IsEnabled() {
		return
	}
	metric := p.metric(name)
	metric.mu.Lock()
	metric.Outcomes[outcome]++
	metric.mu.Unlock()
	p.prom.outcomes.WithLabelValues(name, outcome).Inc()
}

func (p *Profiler) metric(name string) *Metric {
	p.mu.Lock()
	defer p.mu.Unlock()
	metric, exists := p.metrics[name]
	if !exists {
		metric = &Metric{Name: name, Outcomes: make(map[string]int64)}
		p.metrics[name] = metric
	}
	return metric
}

func (p *Profiler) record(name string, duration time.Duration) {
	metric := p.metric(name)

	metric.mu.Lock()
	if metric.Count == 0 || duration < metric.MinTime {
		metric.MinTime = duration
	}
	if duration > metric.MaxTime {
		metric.MaxTime = duration
	}
	metric.Count++
	metric.TotalTime += duration
	metric.LastTime = duration
	metric.LastCall = time.Now()
	metric.mu.Unlock()

	p.prom.durations.WithLabelValues(name).Observe(duration.Seconds())
}

// GetMetric returns a snapshot of one operation's statistics, or nil
func (p *Profiler) GetMetric(name string) *Metric {
	p.mu.RLock()
	metric := p.metrics[name]
	p.mu.RUnlock()
	if metric == nil {
		return nil
	}
	return metric.snapshot()
}

// GetMetrics returns snapshots of all operations
func (p *Profiler) GetMetrics() map[string]*Metric {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[string]*Metric, len(p.metrics))
	for name, metric := range p.metrics {
		result[name] = metric.snapshot()
	}
	return result
}

func (m *Metric) snapshot() *Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := make(map[string]int64, len(m.Outcomes))
	for k, v := range m.Outcomes {
		outcomes[k] = v
	}
	return &Metric{
		Name:      m.Name,
		Count:     m.Count,
		TotalTime: m.TotalTime,
		MinTime:   m.MinTime,
		MaxTime:   m.MaxTime,
		LastTime:  m.LastTime,
		LastCall:  m.LastCall,
		Outcomes:  outcomes,
	}
}

// AverageTime returns the mean duration of a metric
func (m *Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Reset clears the in-memory statistics. Prometheus counters keep counting.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = make(map[string]*Metric)
	p.startTime = time.Now()
}

// Report renders the statistics as a text table sorted by operation name
func (p *Profiler) Report() string {
	metrics := p.GetMetrics()
	if len(metrics) == 0 {
		return "No performance metrics recorded"
	}
	p.mu.RLock()
	start := p.startTime
	p.mu.RUnlock()

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Map Performance Report (since %s) ===\n", start.Format(time.RFC3339))
	fmt.Fprintf(&b, "%-28s %8s %10s %10s %10s  %s\n", "Operation", "Count", "Avg", "Min", "Max", "Outcomes")
	for _, name := range names {
		m := metrics[name]
		fmt.Fprintf(&b, "%-28s %8d %10s %10s %10s  %s\n",
			name,
			m.Count,
			m.AverageTime().Round(time.Microsecond),
			m.MinTime.Round(time.Microsecond),
			m.MaxTime.Round(time.Microsecond),
			formatOutcomes(m.Outcomes),
		)
	}
	fmt.Fprintf(&b, "\nTotal runtime: %s\n", time.Since(start).Round(time.Second))
	return b.String()
}

func formatOutcomes(outcomes map[string]int64) string {
	if len(outcomes) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, outcomes[k])
	}
	return strings.Join(parts, " ")
}

// LogReport writes the text report to the log
func (p *Profiler) LogReport() {
	log.Print(p.Report())
}

// JSONReport renders the statistics as JSON with durations in milliseconds
func (p *Profiler) JSONReport() ([]byte, error) {
	type metricJSON struct {
		Name     string           `json:"name"`
		Count    int64            `json:"count"`
		TotalMs  float64          `json:"total_ms"`
		AvgMs    float64          `json:"avg_ms"`
		MinMs    float64          `json:"min_ms"`
		MaxMs    float64          `json:"max_ms"`
		LastMs   float64          `json:"last_ms"`
		LastCall time.Time        `json:"last_call"`
		Outcomes map[string]int64 `json:"outcomes,omitempty"`
	}
	type reportJSON struct {
		StartTime time.Time              `json:"start_time"`
		RuntimeMs float64                `json:"runtime_ms"`
		Enabled   bool                   `json:"enabled"`
		Metrics   map[string]*metricJSON `json:"metrics"`
	}

	metrics := p.GetMetrics()
	p.mu.RLock()
	report := reportJSON{
		StartTime: p.startTime,
		RuntimeMs: ms(time.Since(p.startTime)),
		Enabled:   p.enabled,
		Metrics:   make(map[string]*metricJSON, len(metrics)),
	}
	p.mu.RUnlock()

	for name, m := range metrics {
		report.Metrics[name] = &metricJSON{
			Name:     m.Name,
			Count:    m.Count,
			TotalMs:  ms(m.TotalTime),
			AvgMs:    ms(m.AverageTime()),
			MinMs:    ms(m.MinTime),
			MaxMs:    ms(m.MaxTime),
			LastMs:   ms(m.LastTime),
			LastCall: m.LastCall,
			Outcomes: m.Outcomes,
		}
	}
	return json.MarshalIndent(report, "", "  ")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Enable turns profiling on
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Disable turns profiling off
func (p *Profiler) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// IsEnabled reports whether profiling is on
func (p *Profiler) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}
