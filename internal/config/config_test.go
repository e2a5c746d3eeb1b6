package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mockmate-judge/pkg/language"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JUDGE_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.ExecutionTimeout)
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, ExecutorBackendProcess, cfg.ExecutorBackend)
	require.Equal(t, EvaluationModeSync, cfg.EvaluationMode)
	require.False(t, cfg.CompileEnabled)
	require.Equal(t, 1024*1024, cfg.MaxOutputBytes)
	require.Equal(t, 10*time.Minute, cfg.ResultCacheTTL)
	require.Equal(t, "judge.evaluations", cfg.NATSSubject)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Empty(t, cfg.RunTemplates)
	require.Empty(t, cfg.CompileTemplates)
	require.Empty(t, cfg.Images)
	require.Empty(t, cfg.LanguageOptions())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("JUDGE_JWT_SECRET", "secret")
	t.Setenv("JUDGE_DATABASE_DRIVER", "SQLite")
	t.Setenv("JUDGE_EXECUTION_TIMEOUT_MS", "2500")
	t.Setenv("JUDGE_EVALUATION_MODE", "async")
	t.Setenv("JUDGE_EVALUATION_WORKERS", "8")
	t.Setenv("JUDGE_JUDGE_COMPILE_ENABLED", "true")
	t.Setenv("JUDGE_LANGUAGES_PYTHON_RUN", "pypy3 {src}")
	t.Setenv("JUDGE_LANGUAGES_CPP_COMPILE", "clang++ -o {bin} {src}")
	t.Setenv("JUDGE_LANGUAGES_JAVA_IMAGE", "eclipse-temurin:17-jdk")
	t.Setenv("JUDGE_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 2500*time.Millisecond, cfg.ExecutionTimeout)
	require.Equal(t, EvaluationModeAsync, cfg.EvaluationMode)
	require.Equal(t, 8, cfg.EvaluationWorkers)
	require.True(t, cfg.CompileEnabled)
	require.Equal(t, "pypy3 {src}", cfg.RunTemplates[language.Python])
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "clang++ -o {bin} {src}", cfg.CompileTemplates[language.Cpp])
	require.Equal(t, "eclipse-temurin:17-jdk", cfg.Images[language.Java])

	registry := language.NewRegistry(cfg.LanguageOptions()...)
	cpp, err := registry.Lookup(language.Cpp)
	require.NoError(t, err)
	compile, err := cpp.CompileCommand()
	require.NoError(t, err)
	require.Equal(t, []string{"clang++", "-o", "solution", "solution.cpp"}, compile)
	java, err := registry.Lookup(language.Java)
	require.NoError(t, err)
	require.Equal(t, "eclipse-temurin:17-jdk", java.Image)
	python, err := registry.Lookup(language.Python)
	require.NoError(t, err)
	require.Equal(t, "pypy3 {src}", python.RunTemplate)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"missing secret": {},
		"driver":         {"jwt.secret": "s", "database.driver": "mysql"},
		"backend":        {"jwt.secret": "s", "executor.backend": "firecracker"},
		"mode":           {"jwt.secret": "s", "evaluation.mode": "batch"},
		"duration":       {"jwt.secret": "s", "result_cache_ttl": "soon"},
	}

	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			for key, value := range values {
				v.Set(key, value)
			}
			_, err := fromViper(v)
			require.Error(t, err)
		})
	}
}
