package utils

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  []Service `json:"services"`
}

type Service struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DependencyCheck is a named health check. Optional checks report "down" without degrading the overall status.
type DependencyCheck struct {
	Name     string
	Optional bool
	Check    func(ctx context.Context) error
}

type HealthChecker struct {
	checks  []DependencyCheck
	timeout time.Duration
}

func NewHealthChecker(timeout time.Duration, checks ...DependencyCheck) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{checks: checks, timeout: timeout}
}

func (h *HealthChecker) Add(p DependencyCheck) {
	h.checks = append(h.checks, p)
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	services := make([]Service, 0, len(h.checks))
	overall := StatusHealthy

	for _, p := range h.checks {
		svc := Service{Name: p.Name, Status: "up"}

		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := p.Check(checkCtx)
		cancel()

		if err != nil {
			svc.Status = "down"
			svc.Message = err.Error()
			if !p.Optional {
				overall = StatusDegraded
			}
		}
		services = append(services, svc)
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
}

func PostgresCheck(db *gorm.DB) DependencyCheck {
	return DependencyCheck{
		Name: "PostgreSQL",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// RedisCheck is optional: the service keeps working without its cache.
func RedisCheck(client *redis.Client) DependencyCheck {
	return DependencyCheck{
		Name:     "Redis",
		Optional: true,
		Check: func(ctx context.Context) error {
			if client == nil {
				return errors.New("not configured")
			}
			return client.Ping(ctx).Err()
		},
	}
}
