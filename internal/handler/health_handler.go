package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/mockmate-judge/internal/config"
	"github.com/noah-isme/mockmate-judge/internal/utils"
	"github.com/noah-isme/mockmate-judge/pkg/language"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status          string              `json:"status"`
	Timestamp       time.Time           `json:"timestamp"`
	Service         string              `json:"service"`
	Environment     string              `json:"environment"`
	ExecutorBackend string              `json:"executor_backend"`
	EvaluationMode  string              `json:"evaluation_mode"`
	Languages       []language.Language `json:"languages"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:          "ok",
			Timestamp:       time.Now().UTC(),
			Service:         cfg.AppName,
			Environment:     cfg.AppEnv,
			ExecutorBackend: cfg.ExecutorBackend,
			EvaluationMode:  cfg.EvaluationMode,
			Languages:       language.All(),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
