package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
	"github.com/yungbote/lessonflow-backend/internal/utils"
)

type Config struct {
	Port     string
	LogMode  string
	RedisOn  bool
	Pacing   flow.Pacing
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	logMode := utils.GetEnv("LOG_MODE", "development", log)
	redisOn := utils.GetEnvAsBool("REDIS_FANOUT_ENABLED", false, log)

	pacing, err := loadPacing(log)
	if err != nil {
		log.Warn("Pacing file load failed, using defaults", "error", err)
		pacing = flow.DefaultPacing()
	}

	return Config{
		Port:    port,
		LogMode: logMode,
		RedisOn: redisOn,
		Pacing:  pacing,
	}
}

// loadPacing reads the optional pacing profile named by
// LESSONFLOW_PACING_FILE. Unset fields keep their defaults.
func loadPacing(log *logger.Logger) (flow.Pacing, error) {
	pacing := flow.DefaultPacing()

	path := strings.TrimSpace(os.Getenv("LESSONFLOW_PACING_FILE"))
	if path == "" {
		return pacing, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return pacing, fmt.Errorf("read pacing file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &pacing); err != nil {
		return pacing, fmt.Errorf("parse pacing file %s: %w", path, err)
	}
	log.Info("Pacing profile loaded", "path", path)
	return pacing, nil
}
