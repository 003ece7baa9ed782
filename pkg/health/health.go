package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is one checker's outcome. Optional results are reported but
// never make the overall status unhealthy.
type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Optional  bool      `json:"optional,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (h Health) Healthy() bool {
	return h.Status == StatusHealthy
}

type registeredChecker struct {
	Checker
	optional bool
}

type CheckerRegistry struct {
	checkers []registeredChecker
	timeout  time.Duration
}

// NewCheckerRegistry bounds every check by timeout. Zero means no bound.
func NewCheckerRegistry(timeout time.Duration) *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]registeredChecker, 0),
		timeout:  timeout,
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, registeredChecker{Checker: checker})
}

// RegisterOptional adds a checker for a dependency the service can run
// without, such as a cache.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checkers = append(r.checkers, registeredChecker{Checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	allHealthy := true

	for _, checker := range r.checkers {
		err := r.run(ctx, checker)
		result := CheckResult{
			Optional:  checker.optional,
			Timestamp: time.Now().UTC(),
		}

		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			if !checker.optional {
				allHealthy = false
			}
		} else {
			result.Status = StatusHealthy
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

func (r *CheckerRegistry) run(ctx context.Context, checker Checker) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return checker.Check(ctx)
}

// Pinger is satisfied by the message store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StoreChecker struct {
	name  string
	store Pinger
}

func NewStoreChecker(name string, store Pinger) *StoreChecker {
	return &StoreChecker{name: name, store: store}
}

func (c *StoreChecker) Name() string {
	return c.name
}

func (c *StoreChecker) Check(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", c.name, err)
	}
	return nil
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
