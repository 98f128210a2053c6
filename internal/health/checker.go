package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/database"
	"github.com/voiceloop/backend/internal/models"
	"github.com/voiceloop/backend/internal/oracle"
)

// HealthChecker manages health checks for all services
type HealthChecker struct {
	dbManager  *database.Manager
	cache      *database.Cache
	healthRepo models.SystemHealthRepository
	oracle     *oracle.Client
	logger     *logrus.Logger
}

func NewHealthChecker(dbManager *database.Manager, healthRepo models.SystemHealthRepository, oracleClient *oracle.Client, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		dbManager:  dbManager,
		cache:      database.NewCache(dbManager.Redis, logger),
		healthRepo: healthRepo,
		oracle:     oracleClient,
		logger:     logger,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks PostgreSQL database health
func (h *HealthChecker) CheckPostgreSQL() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingDatabase()
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).Error("PostgreSQL health check failed")
	}

	h.healthRepo.UpdateServiceHealth("postgresql", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "postgresql",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckRedis checks Redis cache health
func (h *HealthChecker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingRedis()
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).Error("Redis health check failed")
	}

	h.healthRepo.UpdateServiceHealth("redis", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "redis",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckOracle checks the completion oracle's health. The oracle being down is
// degraded, not unhealthy: every oracle consumer has a deterministic fallback.
func (h *HealthChecker) CheckOracle() ServiceHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := h.oracle.Health(ctx)

	responseTime := int(time.Since(start).Milliseconds())
	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "degraded"
		errorMsg = err.Error()
		h.logger.WithError(err).Warn("Oracle health check failed")
	}

	h.healthRepo.UpdateServiceHealth("oracle", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "oracle",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll() OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckOracle(),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
		if service.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

// CheckCached returns cached health status if available
func (h *HealthChecker) CheckCached(ctx context.Context) (*OverallHealth, error) {
	cachedHealth, err := h.cache.GetCachedSystemHealth(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(cachedHealth))
	overallStatus := "healthy"

	for i, health := range cachedHealth {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}

		if health.Status == "unhealthy" {
			overallStatus = "unhealthy"
		} else if health.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return &OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

var startTime = time.Now()

func (h *HealthChecker) getUptime() string {
	uptime := time.Since(startTime)
	return uptime.String()
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll()

			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			healthModels := make([]models.SystemHealth, len(health.Services))
			for i, service := range health.Services {
				checkedAt, _ := time.Parse(time.RFC3339, service.LastChecked)
				healthModels[i] = models.SystemHealth{
					ServiceName:    service.Name,
					Status:         service.Status,
					ResponseTimeMs: service.ResponseTime,
					ErrorMessage:   service.Error,
					CheckedAt:      checkedAt,
				}
			}

			if err := h.cache.CacheSystemHealth(cacheCtx, healthModels, 2*interval); err != nil {
				h.logger.WithError(err).Error("Failed to cache health status")
			}
			cancel()

			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
