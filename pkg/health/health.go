package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"webhook-ingest/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component names used by the readiness checks
const (
	ComponentDatabase      = "database"
	ComponentWebhookSecret = "webhook_secret"
	ComponentAuditSink     = "audit_sink"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks     map[string]registration
	components map[string]*Component
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Checker{
		checks:     make(map[string]registration),
		components: make(map[string]*Component),
		log:        log,
	}
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole system unready.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
	}
}

// RunChecks executes all registered health checks and returns a snapshot of
// the results
func (c *Checker) RunChecks(ctx context.Context) map[string]*Component {
	c.mutex.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mutex.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		c.mutex.RLock()
		reg := c.checks[name]
		c.mutex.RUnlock()

		status, description, err := reg.check(ctx)

		c.mutex.Lock()
		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now().UTC()
		if err != nil {
			component.Error = err.Error()
		} else {
			component.Error = ""
		}
		c.mutex.Unlock()

		if err != nil {
			c.log.Warn("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		}
	}

	return c.GetStatus()
}

// Start runs checks every period until ctx is cancelled, calling onResult
// after each round
func (c *Checker) Start(ctx context.Context, period time.Duration, onResult func(healthy bool)) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			c.RunChecks(ctx)
			if onResult != nil {
				onResult(c.IsSystemHealthy())
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for name, component := range c.components {
		if c.checks[name].critical && component.Status == StatusDown {
			return false
		}
	}

	return true
}

// RegisterDatabaseCheck registers the store connectivity probe
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck(ComponentDatabase, true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterSecretCheck registers a check that the webhook signing secret is configured
func (c *Checker) RegisterSecretCheck(present func(ctx context.Context) bool) {
	c.RegisterCheck(ComponentWebhookSecret, true, func(ctx context.Context) (Status, string, error) {
		if !present(ctx) {
			return StatusDown, "Webhook secret is not configured", nil
		}
		return StatusUp, "Webhook secret is configured", nil
	})
}
