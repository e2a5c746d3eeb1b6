package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/mockmate-judge/pkg/language"
)

// Evaluation modes.
const (
	EvaluationModeSync  = "sync"
	EvaluationModeAsync = "async"
)

// Executor backends.
const (
	ExecutorBackendProcess = "process"
	ExecutorBackendDocker  = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	AllowOrigins        string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	NATSSubject         string
	JWTSecret           string
	ExecutionTimeout    time.Duration
	WorkspaceRoot       string
	ExecutorBackend     string
	DockerHost          string
	CodeRunMemoryMB     int
	CodeRunCPUShares    int
	MaxOutputBytes      int
	CompileEnabled      bool
	FailFast            bool
	EvaluationMode      string
	EvaluationWorkers   int
	EvaluationQueueSize int
	EvaluationDeadline  time.Duration
	ResultCacheTTL      time.Duration
	StatusWait          time.Duration
	TestRateLimit       int
	TestRateWindow      time.Duration
	RunTemplates        map[language.Language]string
	CompileTemplates    map[language.Language]string
	Images              map[language.Language]string
}

// LanguageOptions turns the per-language overrides into registry options.
func (c Config) LanguageOptions() []language.Option {
	opts := make([]language.Option, 0, len(c.RunTemplates)+len(c.CompileTemplates)+len(c.Images))
	for lang, tpl := range c.RunTemplates {
		opts = append(opts, language.WithRunTemplate(lang, tpl))
	}
	for lang, tpl := range c.CompileTemplates {
		opts = append(opts, language.WithCompileTemplate(lang, tpl))
	}
	for lang, image := range c.Images {
		opts = append(opts, language.WithImage(lang, image))
	}
	return opts
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "MockMate Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("nats.subject", "judge.evaluations")
	v.SetDefault("execution_timeout_ms", 10000)
	v.SetDefault("executor.backend", ExecutorBackendProcess)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("max_output_kb", 1024)
	v.SetDefault("judge.compile_enabled", false)
	v.SetDefault("judge.fail_fast", false)
	v.SetDefault("evaluation.mode", EvaluationModeSync)
	v.SetDefault("evaluation.workers", 4)
	v.SetDefault("evaluation.queue_size", 64)
	v.SetDefault("evaluation.deadline", "0s")
	v.SetDefault("result_cache_ttl", "10m")
	v.SetDefault("status_wait", "2m")
	v.SetDefault("test_rate_limit", 10)
	v.SetDefault("test_rate_window", "1m")
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	durations := map[string]time.Duration{}
	for _, key := range []string{"evaluation.deadline", "result_cache_ttl", "status_wait", "test_rate_window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		AllowOrigins:        v.GetString("cors.allow_origins"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		NATSSubject:         v.GetString("nats.subject"),
		JWTSecret:           v.GetString("jwt.secret"),
		ExecutionTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		WorkspaceRoot:       v.GetString("workspace.root"),
		ExecutorBackend:     strings.ToLower(strings.TrimSpace(v.GetString("executor.backend"))),
		DockerHost:          v.GetString("docker_host"),
		CodeRunMemoryMB:     v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:    v.GetInt("code_run_cpu_shares"),
		MaxOutputBytes:      v.GetInt("max_output_kb") * 1024,
		CompileEnabled:      v.GetBool("judge.compile_enabled"),
		FailFast:            v.GetBool("judge.fail_fast"),
		EvaluationMode:      strings.ToLower(strings.TrimSpace(v.GetString("evaluation.mode"))),
		EvaluationWorkers:   v.GetInt("evaluation.workers"),
		EvaluationQueueSize: v.GetInt("evaluation.queue_size"),
		EvaluationDeadline:  durations["evaluation.deadline"],
		ResultCacheTTL:      durations["result_cache_ttl"],
		StatusWait:          durations["status_wait"],
		TestRateLimit:       v.GetInt("test_rate_limit"),
		TestRateWindow:      durations["test_rate_window"],
		RunTemplates:        map[language.Language]string{},
		CompileTemplates:    map[language.Language]string{},
		Images:              map[language.Language]string{},
	}

	for _, lang := range language.All() {
		prefix := "languages." + strings.ToLower(string(lang))
		if tpl := strings.TrimSpace(v.GetString(prefix + ".run")); tpl != "" {
			cfg.RunTemplates[lang] = tpl
		}
		if tpl := strings.TrimSpace(v.GetString(prefix + ".compile")); tpl != "" {
			cfg.CompileTemplates[lang] = tpl
		}
		if image := strings.TrimSpace(v.GetString(prefix + ".image")); image != "" {
			cfg.Images[lang] = image
		}
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.ExecutorBackend {
	case ExecutorBackendProcess, ExecutorBackendDocker:
	default:
		return Config{}, fmt.Errorf("unsupported executor backend %q", cfg.ExecutorBackend)
	}

	switch cfg.EvaluationMode {
	case EvaluationModeSync, EvaluationModeAsync:
	default:
		return Config{}, fmt.Errorf("unsupported evaluation mode %q", cfg.EvaluationMode)
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1024 * 1024
	}
	if cfg.EvaluationWorkers <= 0 {
		cfg.EvaluationWorkers = 1
	}

	return cfg, nil
}
