// Package health reports whether the stores behind the gateway are reachable.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const defaultTimeout = 5 * time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

// Checker runs a named set of checks concurrently.
type Checker struct {
	checks  map[string]Check
	timeout time.Duration
	// details are extra values merged into the report, such as pool stats.
	details map[string]func() interface{}
}

func NewChecker() *Checker {
	return &Checker{
		checks:  map[string]Check{},
		details: map[string]func() interface{}{},
		timeout: defaultTimeout,
	}
}

// Add registers a check. A nil check is ignored so optional stores can be
// passed unconditionally.
func (h *Checker) Add(name string, check Check) *Checker {
	if check != nil {
		h.checks[name] = check
	}
	return h
}

func (h *Checker) Detail(name string, fn func() interface{}) *Checker {
	h.details[name] = fn
	return h
}

type Report struct {
	Status  string                 `json:"status"`
	Checks  map[string]string      `json:"checks"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Status == "healthy" }

func (h *Checker) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = check(ctx)
		}(i, h.checks[name])
	}
	wg.Wait()

	report := Report{Status: "healthy", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		if results[i] != nil {
			report.Status = "unhealthy"
			report.Checks[name] = results[i].Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	if len(h.details) > 0 {
		report.Details = make(map[string]interface{}, len(h.details))
		for name, fn := range h.details {
			report.Details[name] = fn()
		}
	}
	return report
}

// Handler responds 200 when all checks pass and 503 otherwise.
func (h *Checker) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		report := h.Run(c.Request().Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}
