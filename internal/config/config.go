// Package config loads the server configuration from a YAML file, a .env
// file, the environment and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/shehryarbajwa/devicecloud-mini/internal/region"
)

// Config is the complete server configuration.
type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Region   string `yaml:"region"`
	// APIBaseURL replaces every resolved device cloud host when set.
	APIBaseURL string `yaml:"apiBaseUrl"`

	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`

	ReadinessTimeout time.Duration `yaml:"readinessTimeout"`
	InstallTimeout   time.Duration `yaml:"installTimeout"`
	InstallInterval  time.Duration `yaml:"installInterval"`
	CloseTimeout     time.Duration `yaml:"closeTimeout"`

	MaxSessions       int `yaml:"maxSessions"`
	CommandsPerMinute int `yaml:"commandsPerMinute"`
	CommandBurst      int `yaml:"commandBurst"`
	CreatesPerMinute  int `yaml:"createsPerMinute"`

	ArtifactDir  string   `yaml:"artifactDir"`
	ConnectVideo bool     `yaml:"connectVideo"`
	ICEServers   []string `yaml:"iceServers"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Region:            string(region.RegionUSWest1),
		ListenAddr:        ":8080",
		LogLevel:          "info",
		ReadinessTimeout:  2 * time.Minute,
		InstallTimeout:    2 * time.Minute,
		InstallInterval:   100 * time.Millisecond,
		CloseTimeout:      10 * time.Second,
		MaxSessions:       4,
		CommandsPerMinute: 60,
		CommandBurst:      10,
		CreatesPerMinute:  10,
		ArtifactDir:       "./storage/artifacts",
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when empty) and the environment. envFiles are loaded into the
// environment first; with none given, ./.env is tried. Missing env files
// are not an error.
func Load(path string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DEVICECLOUD_USERNAME":     &c.Username,
		"DEVICECLOUD_PASSWORD":     &c.Password,
		"DEVICECLOUD_REGION":       &c.Region,
		"DEVICECLOUD_API_BASE_URL": &c.APIBaseURL,
		"DEVICECLOUD_LISTEN_ADDR":  &c.ListenAddr,
		"DEVICECLOUD_ARTIFACT_DIR": &c.ArtifactDir,
		"LOG_LEVEL":                &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"DEVICECLOUD_READINESS_TIMEOUT": &c.ReadinessTimeout,
		"DEVICECLOUD_INSTALL_TIMEOUT":   &c.InstallTimeout,
		"DEVICECLOUD_INSTALL_INTERVAL":  &c.InstallInterval,
		"DEVICECLOUD_CLOSE_TIMEOUT":     &c.CloseTimeout,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"DEVICECLOUD_MAX_SESSIONS":        &c.MaxSessions,
		"DEVICECLOUD_COMMANDS_PER_MINUTE": &c.CommandsPerMinute,
		"DEVICECLOUD_COMMAND_BURST":       &c.CommandBurst,
		"DEVICECLOUD_CREATES_PER_MINUTE":  &c.CreatesPerMinute,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("DEVICECLOUD_CONNECT_VIDEO"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEVICECLOUD_CONNECT_VIDEO: %w", err)
		}
		c.ConnectVideo = b
	}
	if v, ok := os.LookupEnv("DEVICECLOUD_ICE_SERVERS"); ok {
		c.ICEServers = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AddFlags registers a flag for every setting, defaulting to the current
// values so that only flags given on the command line override them.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Username, "username", c.Username, "device cloud username")
	fs.StringVar(&c.Region, "region", c.Region, "API region (us-west-1, us-east-4, eu-central-1)")
	fs.StringVar(&c.APIBaseURL, "api-base-url", c.APIBaseURL, "override the device cloud base URL")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "address of the local control API")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&c.ReadinessTimeout, "readiness-timeout", c.ReadinessTimeout, "how long a device may take to come online")
	fs.DurationVar(&c.InstallTimeout, "install-timeout", c.InstallTimeout, "how long an app installation may take")
	fs.DurationVar(&c.InstallInterval, "install-interval", c.InstallInterval, "installation status poll interval")
	fs.DurationVar(&c.CloseTimeout, "close-timeout", c.CloseTimeout, "bound on the close call made at teardown")
	fs.IntVar(&c.MaxSessions, "max-sessions", c.MaxSessions, "maximum number of live sessions")
	fs.IntVar(&c.CommandsPerMinute, "commands-per-minute", c.CommandsPerMinute, "post-ready commands allowed per session per minute (0 disables)")
	fs.IntVar(&c.CommandBurst, "command-burst", c.CommandBurst, "post-ready command burst per session")
	fs.IntVar(&c.CreatesPerMinute, "creates-per-minute", c.CreatesPerMinute, "session creations allowed per client per minute (0 disables)")
	fs.StringVar(&c.ArtifactDir, "artifact-dir", c.ArtifactDir, "directory for session artifacts")
	fs.BoolVar(&c.ConnectVideo, "connect-video", c.ConnectVideo, "connect the video transport once a session is ready")
	fs.StringSliceVar(&c.ICEServers, "ice-server", c.ICEServers, "STUN/TURN server URL (repeatable)")
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if strings.TrimSpace(c.Password) == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if !region.NewManager("").Valid(c.Region) {
		errs = append(errs, fmt.Errorf("unknown region %q", c.Region))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"readiness timeout", c.ReadinessTimeout},
		{"install timeout", c.InstallTimeout},
		{"install interval", c.InstallInterval},
		{"close timeout", c.CloseTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}

	if c.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions))
	}
	if c.CommandsPerMinute < 0 || c.CreatesPerMinute < 0 {
		errs = append(errs, errors.New("rates must not be negative"))
	}
	if c.CommandBurst <= 0 {
		errs = append(errs, fmt.Errorf("command burst must be positive, got %d", c.CommandBurst))
	}
	if c.ArtifactDir == "" {
		errs = append(errs, errors.New("artifact directory is required"))
	}

	return errors.Join(errs...)
}
