package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/config"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// Readiness states reported per dependency.
const (
	HealthOK       = "ok"
	HealthDown     = "down"
	HealthDisabled = "disabled"
)

const healthPingTimeout = 2 * time.Second

// HealthDependencies lists the backing services the health endpoint pings. Nil entries report disabled.
type HealthDependencies struct {
	DB    *gorm.DB
	Redis *redis.Client
	NATS  *nats.Conn
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks"`
}

// HealthCheck reports readiness of the database, Redis and NATS. A database outage answers 503;
// Redis and NATS only degrade realtime fan-out, so they are reported without failing the check.
func HealthCheck(cfg config.Config, deps HealthDependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
		defer cancel()

		checks := map[string]string{
			"database": databaseState(ctx, deps.DB),
			"redis":    redisState(ctx, deps.Redis),
			"nats":     natsState(deps.NATS),
		}

		if checks["database"] != HealthOK {
			return utils.Fail(c, fiber.StatusServiceUnavailable, "service degraded", checks)
		}

		payload := HealthResponse{
			Status:      HealthOK,
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Checks:      checks,
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}

func databaseState(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return HealthDown
	}
	sqlDB, err := db.DB()
	if err != nil {
		return HealthDown
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return HealthDown
	}
	return HealthOK
}

func redisState(ctx context.Context, client *redis.Client) string {
	if client == nil {
		return HealthDisabled
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return HealthDown
	}
	return HealthOK
}

func natsState(conn *nats.Conn) string {
	if conn == nil {
		return HealthDisabled
	}
	if !conn.IsConnected() {
		return HealthDown
	}
	return HealthOK
}
