package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // json, text
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	TTS         TTSConfig        `yaml:"tts"`
	Assistant   AssistantConfig  `yaml:"assistant"`
	Weather     WeatherConfig    `yaml:"weather"`
	Controller  ControllerConfig `yaml:"controller"`
	Keywords    KeywordsConfig   `yaml:"keywords"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session
}

type STTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"` // scripted, mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	MaxCaptureMS   int    `yaml:"max_capture_ms"`
	MockTranscript string `yaml:"mock_transcript"`
	MockDelayMS    int    `yaml:"mock_delay_ms"`
}

type TTSConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Mode       string  `yaml:"mode"` // mock, exec
	Command    string  `yaml:"command"`
	Rate       float64 `yaml:"rate"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
}

// AssistantConfig describes the remote chat assistant. Endpoint is the only
// setting without a usable default.
type AssistantConfig struct {
	Endpoint  string      `yaml:"endpoint"`
	TimeoutMS int         `yaml:"timeout_ms"`
	Proxy     string      `yaml:"proxy"`
	Retry     RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialIntervalMS int `yaml:"initial_interval_ms"`
	MaxIntervalMS     int `yaml:"max_interval_ms"`
}

type WeatherConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
	TimeoutMS       int     `yaml:"timeout_ms"`
	Proxy           string  `yaml:"proxy"`
	CacheSize       int     `yaml:"cache_size"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

type ControllerConfig struct {
	DefaultLanguage     string `yaml:"default_language"`
	ExclusiveOperations bool   `yaml:"exclusive_operations"`
	MaxSessions         int    `yaml:"max_sessions"`
}

type KeywordsConfig struct {
	Path string `yaml:"path"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-concierge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/concierge-events.db",
			RetentionMode: "session",
		},
		STT: STTConfig{
			Enabled:      false,
			Mode:         "scripted",
			SampleRate:   16000,
			Channels:     1,
			MaxCaptureMS: 15000,
			MockDelayMS:  300,
		},
		TTS: TTSConfig{
			Enabled:    false,
			Mode:       "mock",
			Rate:       0.5,
			SampleRate: 22050,
			Channels:   1,
		},
		Assistant: AssistantConfig{
			Retry: RetryConfig{
				MaxAttempts:       0,
				InitialIntervalMS: 500,
				MaxIntervalMS:     5000,
			},
		},
		Weather: WeatherConfig{
			Enabled:         false,
			Latitude:        37.5665,
			Longitude:       126.9780,
			CacheSize:       64,
			CacheTTLSeconds: 600,
		},
		Controller: ControllerConfig{
			DefaultLanguage: string(locale.Default),
			MaxSessions:     64,
		},
	}
}

// LoadEnv reads dotenv files into the process environment. Variables that are
// already set win, and missing files are skipped.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CONCIERGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CONCIERGE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CONCIERGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CONCIERGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CONCIERGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "CONCIERGE_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CONCIERGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CONCIERGE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "CONCIERGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CONCIERGE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "CONCIERGE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "CONCIERGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CONCIERGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CONCIERGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CONCIERGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CONCIERGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CONCIERGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "CONCIERGE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "CONCIERGE_EVENT_STORE_RETENTION_MODE")
	overrideBool(&cfg.STT.Enabled, "CONCIERGE_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "CONCIERGE_STT_MODE")
	overrideString(&cfg.STT.Command, "CONCIERGE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "CONCIERGE_STT_MODEL_PATH")
	overrideInt(&cfg.STT.SampleRate, "CONCIERGE_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "CONCIERGE_STT_CHANNELS")
	overrideInt(&cfg.STT.MaxCaptureMS, "CONCIERGE_STT_MAX_CAPTURE_MS")
	overrideString(&cfg.STT.MockTranscript, "CONCIERGE_STT_MOCK_TRANSCRIPT")
	overrideInt(&cfg.STT.MockDelayMS, "CONCIERGE_STT_MOCK_DELAY_MS")
	overrideBool(&cfg.TTS.Enabled, "CONCIERGE_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "CONCIERGE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "CONCIERGE_TTS_COMMAND")
	overrideFloat(&cfg.TTS.Rate, "CONCIERGE_TTS_RATE")
	overrideInt(&cfg.TTS.SampleRate, "CONCIERGE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "CONCIERGE_TTS_CHANNELS")
	overrideString(&cfg.Assistant.Endpoint, "CONCIERGE_ASSISTANT_ENDPOINT")
	overrideInt(&cfg.Assistant.TimeoutMS, "CONCIERGE_ASSISTANT_TIMEOUT_MS")
	overrideString(&cfg.Assistant.Proxy, "CONCIERGE_ASSISTANT_PROXY")
	overrideInt(&cfg.Assistant.Retry.MaxAttempts, "CONCIERGE_ASSISTANT_RETRY_MAX_ATTEMPTS")
	overrideInt(&cfg.Assistant.Retry.InitialIntervalMS, "CONCIERGE_ASSISTANT_RETRY_INITIAL_INTERVAL_MS")
	overrideInt(&cfg.Assistant.Retry.MaxIntervalMS, "CONCIERGE_ASSISTANT_RETRY_MAX_INTERVAL_MS")
	overrideBool(&cfg.Weather.Enabled, "CONCIERGE_WEATHER_ENABLED")
	overrideString(&cfg.Weather.Endpoint, "CONCIERGE_WEATHER_ENDPOINT")
	overrideFloat(&cfg.Weather.Latitude, "CONCIERGE_WEATHER_LATITUDE")
	overrideFloat(&cfg.Weather.Longitude, "CONCIERGE_WEATHER_LONGITUDE")
	overrideInt(&cfg.Weather.TimeoutMS, "CONCIERGE_WEATHER_TIMEOUT_MS")
	overrideString(&cfg.Weather.Proxy, "CONCIERGE_WEATHER_PROXY")
	overrideInt(&cfg.Weather.CacheSize, "CONCIERGE_WEATHER_CACHE_SIZE")
	overrideInt(&cfg.Weather.CacheTTLSeconds, "CONCIERGE_WEATHER_CACHE_TTL_SECONDS")
	overrideString(&cfg.Controller.DefaultLanguage, "CONCIERGE_CONTROLLER_DEFAULT_LANGUAGE")
	overrideBool(&cfg.Controller.ExclusiveOperations, "CONCIERGE_CONTROLLER_EXCLUSIVE_OPERATIONS")
	overrideInt(&cfg.Controller.MaxSessions, "CONCIERGE_CONTROLLER_MAX_SESSIONS")
	overrideString(&cfg.Keywords.Path, "CONCIERGE_KEYWORDS_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty when retention_mode=session")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session")
	}
	if err := validateAssistant(cfg.Assistant); err != nil {
		return err
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "scripted", "mock", "exec":
		default:
			return errors.New("stt.mode must be one of scripted|mock|exec")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.MaxCaptureMS <= 0 {
			return errors.New("stt.max_capture_ms must be positive")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.Rate <= 0 {
			return errors.New("tts.rate must be positive")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if cfg.Weather.Enabled {
		if err := validateURL(cfg.Weather.Endpoint); err != nil {
			return fmt.Errorf("weather.endpoint: %w", err)
		}
		if cfg.Weather.Latitude < -90 || cfg.Weather.Latitude > 90 {
			return errors.New("weather.latitude must be between -90 and 90")
		}
		if cfg.Weather.Longitude < -180 || cfg.Weather.Longitude > 180 {
			return errors.New("weather.longitude must be between -180 and 180")
		}
		if cfg.Weather.CacheSize <= 0 {
			return errors.New("weather.cache_size must be positive")
		}
	}
	if _, err := locale.Parse(cfg.Controller.DefaultLanguage); err != nil {
		return fmt.Errorf("controller.default_language: %w", err)
	}
	if cfg.Controller.MaxSessions <= 0 {
		return errors.New("controller.max_sessions must be >= 1")
	}
	return nil
}

func validateAssistant(cfg AssistantConfig) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("assistant.endpoint must be set (CONCIERGE_ASSISTANT_ENDPOINT)")
	}
	if err := validateURL(cfg.Endpoint); err != nil {
		return fmt.Errorf("assistant.endpoint: %w", err)
	}
	if cfg.TimeoutMS < 0 {
		return errors.New("assistant.timeout_ms must be >= 0")
	}
	if cfg.Retry.MaxAttempts < 0 {
		return errors.New("assistant.retry.max_attempts must be >= 0")
	}
	if cfg.Retry.MaxAttempts > 1 && cfg.Retry.InitialIntervalMS <= 0 {
		return errors.New("assistant.retry.initial_interval_ms must be positive when retries are enabled")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
