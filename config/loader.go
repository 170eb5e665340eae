package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-gateway-console/types"
)

const (
	EnvAPIURL          = "CONSOLE_API_URL"
	EnvPublicAPIURL    = "NEXT_PUBLIC_API_URL"
	EnvLogLevel        = "CONSOLE_LOG_LEVEL"
	EnvStreamTransport = "CONSOLE_STREAM_TRANSPORT"
)

type Loader struct {
	validator *validator.Validate
	lookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		lookupEnv: os.LookupEnv,
	}
}

// Load reads configPath when it is set, then applies environment overrides
// and validates the result. An empty path yields defaults plus environment.
func (l *Loader) Load(configPath string) (*types.ConsoleConfig, error) {
	config := l.Defaults()

	if configPath != "" {
		loaded, err := l.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	l.applyEnv(config)

	if err := l.Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) LoadFromFile(configPath string) (*types.ConsoleConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(types.ErrConfigNotFound, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.Parse(data)
}

func (l *Loader) Parse(data []byte) (*types.ConsoleConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) Validate(config *types.ConsoleConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) applyEnv(config *types.ConsoleConfig) {
	for _, name := range []string{EnvPublicAPIURL, EnvAPIURL} {
		if value, ok := l.lookupEnv(name); ok && strings.TrimSpace(value) != "" {
			config.API.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}

	if value, ok := l.lookupEnv(EnvLogLevel); ok && value != "" {
		config.Logger.Level = strings.ToLower(value)
	}

	if value, ok := l.lookupEnv(EnvStreamTransport); ok && value != "" {
		config.Stream.Transport = strings.ToLower(value)
	}
}

func (l *Loader) Defaults() *types.ConsoleConfig {
	return &types.ConsoleConfig{
		Name: "gateway-console",
		API: &types.APIConfig{
			BaseURL:         "http://localhost:8080",
			Timeout:         10 * time.Second,
			CacheTTL:        time.Second,
			CacheMaxEntries: 100,
			CacheCompactTo:  50,
			Compression:     true,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
			},
		},
		Stream: &types.StreamConfig{
			Path:                 "/admin/analytics/stream",
			Transport:            "sse",
			BaseDelay:            time.Second,
			MaxDelay:             30 * time.Second,
			MaxReconnectAttempts: 10,
		},
		Queries: &types.QueriesConfig{
			RefreshTimeout:   10 * time.Second,
			AnalyticsRefresh: "@every 30s",
			Timezone:         "UTC",
		},
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Metrics: &types.MetricsConfig{
			Enabled:   true,
			Namespace: "gateway_console",
		},
	}
}
