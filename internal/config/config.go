package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	// HTTP server configuration
	HTTP struct {
		Address         string        `yaml:"address" validate:"required"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	// gRPC server configuration
	GRPC struct {
		Address              string        `yaml:"address" validate:"required"`
		KeepAliveTime        time.Duration `yaml:"keep_alive_time"`
		KeepAliveTimeout     time.Duration `yaml:"keep_alive_timeout"`
		MaxConcurrentStreams int           `yaml:"max_concurrent_streams" validate:"gte=0"`
	} `yaml:"grpc"`

	// WebRTC configuration
	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers" validate:"dive"`
		UDPPortMin uint16      `yaml:"udp_port_min"`
		UDPPortMax uint16      `yaml:"udp_port_max" validate:"omitempty,gtefield=UDPPortMin"`
	} `yaml:"webrtc"`

	// Per-session delivery configuration
	Session Session `yaml:"session"`

	// Capture pipeline configuration
	Capture struct {
		IdleGrace time.Duration         `yaml:"idle_grace"`
		Apps      map[string]CaptureApp `yaml:"apps" validate:"dive"`
	} `yaml:"capture"`

	// Input data channel configuration
	Input struct {
		Label         string        `yaml:"label"`
		MouseIdle     time.Duration `yaml:"mouse_idle"`
		InjectorURL   string        `yaml:"injector_url" validate:"omitempty,url"`
		InjectorToken string        `yaml:"injector_token"`
	} `yaml:"input"`

	// Metrics configuration
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	// Bearer token authentication for the signaling API
	Auth struct {
		Enabled bool   `yaml:"enabled"`
		Secret  string `yaml:"secret" validate:"required_if=Enabled true"`
		Issuer  string `yaml:"issuer"`
	} `yaml:"auth"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=json text"`
		Output string `yaml:"output" validate:"oneof=stdout stderr"`
	} `yaml:"logging"`
}

// ICEServer represents a WebRTC ICE server configuration
type ICEServer struct {
	URLs       []string `yaml:"urls" validate:"min=1"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// Session holds the defaults applied to every new session.
type Session struct {
	PacingMode string `yaml:"pacing_mode" validate:"oneof=latency balanced smoothness"`

	LatencySlack    time.Duration `yaml:"latency_slack"`
	BalancedSlack   time.Duration `yaml:"balanced_slack"`
	SmoothnessSlack time.Duration `yaml:"smoothness_slack"`

	LatencyMaxAgeFrames    int `yaml:"latency_max_age_frames" validate:"gte=0"`
	BalancedMaxAgeFrames   int `yaml:"balanced_max_age_frames" validate:"gte=0"`
	SmoothnessMaxAgeFrames int `yaml:"smoothness_max_age_frames" validate:"gte=0"`

	// MaxFrameAge overrides the age bound derived from max age frames.
	MaxFrameAge time.Duration `yaml:"max_frame_age"`
	AudioMaxAge time.Duration `yaml:"audio_max_age"`

	KeyframeRequestInterval time.Duration `yaml:"keyframe_request_interval"`
	ResyncInterval          time.Duration `yaml:"resync_interval"`

	VideoQueueCapacity int `yaml:"video_queue_capacity" validate:"gte=0"`
	AudioQueueCapacity int `yaml:"audio_queue_capacity" validate:"gte=0"`

	AnswerTimeout time.Duration `yaml:"answer_timeout"`
}

// CaptureApp describes where frames for an application come from.
type CaptureApp struct {
	Source           string        `yaml:"source" validate:"oneof=synthetic rtmp"`
	URL              string        `yaml:"url" validate:"required_if=Source rtmp"`
	KeyframeInterval time.Duration `yaml:"keyframe_interval"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	RawFrames        bool          `yaml:"raw_frames"`
}

// Load loads the configuration from a file. Variables from a .env file in
// the working directory are loaded first when one exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// Read the configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse the configuration
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment overrides
	applyEnvironmentOverrides(config)

	// Set defaults
	setDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	config := &Config{}
	setDefaults(config)
	return config
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(config *Config) {
	// HTTP address
	if addr := os.Getenv("HTTP_ADDRESS"); addr != "" {
		config.HTTP.Address = addr
	}

	// gRPC address
	if addr := os.Getenv("GRPC_ADDRESS"); addr != "" {
		config.GRPC.Address = addr
	}

	// Environment
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Service.Environment = env
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if url := os.Getenv("INPUT_INJECTOR_URL"); url != "" {
		config.Input.InjectorURL = url
	}

	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
}

// setDefaults sets default values
func setDefaults(config *Config) {
	if config.Service.Name == "" {
		config.Service.Name = "hivecast"
	}

	// Set default HTTP address
	if config.HTTP.Address == "" {
		config.HTTP.Address = ":8088"
	}

	// Set default gRPC address
	if config.GRPC.Address == "" {
		config.GRPC.Address = ":50053"
	}

	// Set default HTTP timeouts
	if config.HTTP.ReadTimeout == 0 {
		config.HTTP.ReadTimeout = 10 * time.Second
	}
	if config.HTTP.WriteTimeout == 0 {
		config.HTTP.WriteTimeout = 30 * time.Second
	}
	if config.HTTP.ShutdownTimeout == 0 {
		config.HTTP.ShutdownTimeout = 5 * time.Second
	}

	// Set default gRPC settings
	if config.GRPC.KeepAliveTime == 0 {
		config.GRPC.KeepAliveTime = 60 * time.Second
	}
	if config.GRPC.KeepAliveTimeout == 0 {
		config.GRPC.KeepAliveTimeout = 20 * time.Second
	}
	if config.GRPC.MaxConcurrentStreams == 0 {
		config.GRPC.MaxConcurrentStreams = 100
	}

	// Set default WebRTC configuration
	if len(config.WebRTC.ICEServers) == 0 {
		config.WebRTC.ICEServers = []ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		}
	}

	setSessionDefaults(&config.Session)

	if config.Capture.IdleGrace == 0 {
		config.Capture.IdleGrace = 3 * time.Minute
	}
	if len(config.Capture.Apps) == 0 {
		config.Capture.Apps = map[string]CaptureApp{
			"desktop": {Source: "synthetic"},
		}
	}
	for id, app := range config.Capture.Apps {
		if app.Source == "" {
			app.Source = "synthetic"
		}
		if app.KeyframeInterval == 0 {
			app.KeyframeInterval = 2 * time.Second
		}
		if app.DialTimeout == 0 {
			app.DialTimeout = 5 * time.Second
		}
		config.Capture.Apps[id] = app
	}

	if config.Input.Label == "" {
		config.Input.Label = "input"
	}
	if config.Input.MouseIdle == 0 {
		config.Input.MouseIdle = time.Second
	}

	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}

	if config.Auth.Issuer == "" {
		config.Auth.Issuer = "hivecast"
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}
}

func setSessionDefaults(s *Session) {
	if s.PacingMode == "" {
		s.PacingMode = "balanced"
	}
	if s.LatencySlack == 0 {
		s.LatencySlack = time.Millisecond
	}
	if s.BalancedSlack == 0 {
		s.BalancedSlack = 4 * time.Millisecond
	}
	if s.SmoothnessSlack == 0 {
		s.SmoothnessSlack = 8 * time.Millisecond
	}
	if s.LatencyMaxAgeFrames == 0 {
		s.LatencyMaxAgeFrames = 1
	}
	if s.BalancedMaxAgeFrames == 0 {
		s.BalancedMaxAgeFrames = 3
	}
	if s.SmoothnessMaxAgeFrames == 0 {
		s.SmoothnessMaxAgeFrames = 6
	}
	if s.AudioMaxAge == 0 {
		s.AudioMaxAge = 60 * time.Millisecond
	}
	if s.KeyframeRequestInterval == 0 {
		s.KeyframeRequestInterval = 250 * time.Millisecond
	}
	if s.ResyncInterval == 0 {
		s.ResyncInterval = time.Second
	}
	if s.VideoQueueCapacity == 0 {
		s.VideoQueueCapacity = 2
	}
	if s.AudioQueueCapacity == 0 {
		s.AudioQueueCapacity = 4
	}
	if s.AnswerTimeout == 0 {
		s.AnswerTimeout = 5 * time.Second
	}
}
