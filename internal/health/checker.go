// Package health performs liveness checks on stores and upstream APIs.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of one component check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component is a system component that was health-checked.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // store, http
	CheckResult
}

// Probe is a named store check. The function should issue a cheap read
// against the underlying storage.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Checker performs health checks on stores and upstream endpoints.
type Checker struct {
	mu         sync.RWMutex
	components []Component

	probes    []Probe
	upstreams map[string]string

	storeTimeout    time.Duration
	httpTimeout     time.Duration
	maxStoreLatency time.Duration
}

// Config holds health checker configuration.
type Config struct {
	// Store probes, checked concurrently.
	Probes []Probe

	// Upstream endpoints, name -> base URL. Reachability only; any HTTP
	// status counts as up.
	Upstreams map[string]string

	StoreTimeout    time.Duration
	HTTPTimeout     time.Duration
	MaxStoreLatency time.Duration
}

// New creates a health checker.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxStoreLatency == 0 {
		cfg.MaxStoreLatency = 100 * time.Millisecond
	}
	return &Checker{
		probes:          cfg.Probes,
		upstreams:       cfg.Upstreams,
		storeTimeout:    cfg.StoreTimeout,
		httpTimeout:     cfg.HTTPTimeout,
		maxStoreLatency: cfg.MaxStoreLatency,
	}
}

// Overall represents the aggregated health of the system.
type Overall struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Check runs all checks concurrently and returns the aggregated status.
func (c *Checker) Check(ctx context.Context) Overall {
	var wg sync.WaitGroup
	results := make(chan Component, len(c.probes)+len(c.upstreams))

	for _, p := range c.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			results <- c.checkStore(ctx, p)
		}(p)
	}
	for name, url := range c.upstreams {
		if url == "" {
			continue
		}
		wg.Add(1)
		go func(name, url string) {
			defer wg.Done()
			results <- c.checkHTTPEndpoint(ctx, name, url)
		}(name, url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0)
	for comp := range results {
		components = append(components, comp)
	}

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return c.overall(components)
}

func (c *Checker) checkStore(ctx context.Context, p Probe) Component {
	comp := Component{
		Name:        p.Name,
		Type:        "store",
		CheckResult: CheckResult{Timestamp: time.Now()},
	}

	start := time.Now()
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	err := p.Check(storeCtx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Store unreachable"
		return comp
	}
	if comp.Latency > c.maxStoreLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	} else {
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

func (c *Checker) checkHTTPEndpoint(ctx context.Context, name, baseURL string) Component {
	comp := Component{
		Name:        name,
		Type:        "http",
		CheckResult: CheckResult{Timestamp: time.Now()},
	}

	start := time.Now()
	client := &http.Client{Timeout: c.httpTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Latency = time.Since(start)
		return comp
	}

	resp, err := client.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Endpoint unreachable"
		return comp
	}
	defer resp.Body.Close()

	// Any status counts as reachable.
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

func (c *Checker) overall(components []Component) Overall {
	status := StatusHealthy
	criticalUnhealthy := false

	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			// Store failures are critical.
			if comp.Type == "store" {
				criticalUnhealthy = true
			}
			if status == StatusHealthy {
				status = StatusDegraded
			}
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	if criticalUnhealthy {
		status = StatusUnhealthy
	}

	return Overall{Status: status, Timestamp: time.Now(), Components: components}
}

// LastStatus returns the aggregation of the most recent check.
func (c *Checker) LastStatus() Overall {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.components) == 0 {
		return Overall{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return c.overall(c.components)
}
