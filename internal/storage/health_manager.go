package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthData is the last known health of a storage backend
type HealthData struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// HealthChecker is implemented by backends that can verify their connection
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager manages storage health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthData
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthData),
	}
}

// UpdateHealth updates the health status for a storage backend
func (hm *HealthManager) UpdateHealth(storageType string, health HealthData) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[storageType] = health
}

// GetHealth retrieves the health status for a specific storage backend
func (hm *HealthManager) GetHealth(storageType string) (HealthData, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	health, exists := hm.health[storageType]
	return health, exists
}

// GetAllHealth retrieves all storage health statuses
func (hm *HealthManager) GetAllHealth() map[string]HealthData {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]HealthData, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy checks if a storage backend is healthy
func (hm *HealthManager) IsHealthy(storageType string, maxAge time.Duration) bool {
	health, exists := hm.GetHealth(storageType)
	if !exists {
		return false
	}

	// Check if health data is stale
	if time.Since(health.LastCheck) > maxAge {
		return false
	}

	return health.Status == StatusHealthy
}

// Check runs checker once and records the outcome under storageType
func (hm *HealthManager) Check(ctx context.Context, storageType string, checker HealthChecker) HealthData {
	health := HealthData{
		LastCheck: time.Now(),
		Status:    StatusHealthy,
		Message:   storageType + " operational",
	}
	if err := checker.CheckHealth(ctx); err != nil {
		health.Status = StatusUnhealthy
		health.Message = storageType + " health check failed"
		health.Error = err.Error()
	}
	hm.UpdateHealth(storageType, health)
	return health
}

// StartHealthMonitor starts a generic health monitoring goroutine for any storage backend
func (hm *HealthManager) StartHealthMonitor(ctx context.Context, storageType string, checker HealthChecker, interval time.Duration, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	go func() {
		updateHealth := func() {
			health := hm.Check(ctx, storageType, checker)
			if health.Status != StatusHealthy {
				logger.Warnw("storage backend unhealthy", "backend", storageType, "error", health.Error)
			} else {
				logger.Debugf("updated %s health status: %s", storageType, health.Status)
			}
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// StartHealthMonitors monitors every engine of m that supports health checks
func (m *Multi) StartHealthMonitors(ctx context.Context, hm *HealthManager, interval time.Duration, logger *zap.SugaredLogger) {
	for _, e := range m.Engines {
		if checker, ok := e.Store.(HealthChecker); ok {
			hm.StartHealthMonitor(ctx, e.Name, checker, interval, logger)
		}
	}
}
