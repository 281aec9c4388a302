package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical daemon defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Restart modes accepted in tracker.restart_mode.
const (
	RestartConstant    = "constant"
	RestartExponential = "exponential"
)

var validate = validator.New()

// DaemonConfig is the root configuration of the tracker daemon. Every leaf is
// optional: the Get* methods fall back to built-in defaults, so a partial
// file is safe. The same schema is accepted as JSON or YAML.
type DaemonConfig struct {
	Tracker   TrackerSection   `json:"tracker" yaml:"tracker"`
	Serial    SerialSection    `json:"serial" yaml:"serial"`
	Storage   StorageSection   `json:"storage" yaml:"storage"`
	HTTP      HTTPSection      `json:"http" yaml:"http"`
	Keepalive KeepaliveSection `json:"keepalive" yaml:"keepalive"`
}

// TrackerSection holds the duty cycle and restart policy.
type TrackerSection struct {
	ActiveWindowSeconds  *float64 `json:"active_window_seconds,omitempty" yaml:"active_window_seconds,omitempty" validate:"omitempty,gt=0"`
	SleepIntervalSeconds *float64 `json:"sleep_interval_seconds,omitempty" yaml:"sleep_interval_seconds,omitempty" validate:"omitempty,gt=0"`
	RestartMode          *string  `json:"restart_mode,omitempty" yaml:"restart_mode,omitempty" validate:"omitempty,oneof=constant exponential"`
	RestartInterval      *string  `json:"restart_interval,omitempty" yaml:"restart_interval,omitempty"`         // duration string like "60s"
	RestartMaxInterval   *string  `json:"restart_max_interval,omitempty" yaml:"restart_max_interval,omitempty"` // exponential mode only
}

// SerialSection describes the GNSS receiver connection.
type SerialSection struct {
	Enabled      *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Port         *string                `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1"`
	Options      *serialmux.PortOptions `json:"options,omitempty" yaml:"options,omitempty"`
	UERE         *float64               `json:"uere_meters,omitempty" yaml:"uere_meters,omitempty" validate:"omitempty,gt=0"`
	InitCommands []string               `json:"init_commands,omitempty" yaml:"init_commands,omitempty" validate:"dive,min=1"`
}

// StorageSection locates the SQLite database.
type StorageSection struct {
	DBPath        *string `json:"db_path,omitempty" yaml:"db_path,omitempty" validate:"omitempty,min=1"`
	RetentionDays *int    `json:"retention_days,omitempty" yaml:"retention_days,omitempty" validate:"omitempty,gte=0"` // 0 keeps samples forever
}

// HTTPSection configures the API listener.
type HTTPSection struct {
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// KeepaliveSection configures the token provider.
type KeepaliveSection struct {
	TokenLifetime *string `json:"token_lifetime,omitempty" yaml:"token_lifetime,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDaemonConfig returns a config with every field unset.
func EmptyDaemonConfig() *DaemonConfig {
	return &DaemonConfig{}
}

// DefaultDaemonConfig returns a config with every field set to its default.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Tracker: TrackerSection{
			ActiveWindowSeconds:  ptrFloat64(location.DefaultActiveWindowSeconds),
			SleepIntervalSeconds: ptrFloat64(location.DefaultSleepIntervalSeconds),
			RestartMode:          ptrString(RestartConstant),
			RestartInterval:      ptrString("60s"),
			RestartMaxInterval:   ptrString("10m"),
		},
		Serial: SerialSection{
			Enabled: ptrBool(true),
			Port:    ptrString("/dev/ttyACM0"),
			Options: &serialmux.PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"},
			UERE:    ptrFloat64(5),
		},
		Storage:   StorageSection{DBPath: ptrString("position.db"), RetentionDays: ptrInt(30)},
		HTTP:      HTTPSection{Listen: ptrString(":8080")},
		Keepalive: KeepaliveSection{TokenLifetime: ptrString("180s")},
	}
}

// LoadDaemonConfig loads a DaemonConfig from a .json, .yaml or .yml file of
// at most 1MB and validates it.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDaemonConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. It panics when the file cannot be found, and is meant
// for test setup.
func MustLoadDefaultConfig() *DaemonConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadDaemonConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// SetTrackerConfig records the duty-cycle parameters in the tracker section.
func (c *DaemonConfig) SetTrackerConfig(tc location.TrackerConfig) {
	c.Tracker.ActiveWindowSeconds = ptrFloat64(tc.ActiveWindowSeconds)
	c.Tracker.SleepIntervalSeconds = ptrFloat64(tc.SleepIntervalSeconds)
}

// SaveDaemonConfig writes cfg to path in the format its extension names.
// The file is replaced atomically.
func SaveDaemonConfig(path string, cfg *DaemonConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cleanPath := filepath.Clean(path)

	var (
		data []byte
		err  error
	)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cleanPath), ".tracker-config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), cleanPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Validate runs the struct tag rules and the checks tags cannot express.
func (c *DaemonConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for name, v := range map[string]*string{
		"tracker.restart_interval":     c.Tracker.RestartInterval,
		"tracker.restart_max_interval": c.Tracker.RestartMaxInterval,
		"keepalive.token_lifetime":     c.Keepalive.TokenLifetime,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.GetRestartMaxInterval() < c.GetRestartInterval() {
		return fmt.Errorf("tracker.restart_max_interval %v is shorter than restart_interval %v",
			c.GetRestartMaxInterval(), c.GetRestartInterval())
	}

	if c.Serial.Options != nil {
		if _, err := c.Serial.Options.Normalize(); err != nil {
			return fmt.Errorf("serial.options: %w", err)
		}
	}

	if err := c.TrackerConfig().Validate(); err != nil {
		return err
	}

	// An expired token is force-released by the keepalive manager, leaving
	// the process unprotected until the next cycle.
	if lifetime, hold := c.GetTokenLifetime(), c.TokenHold(); lifetime < hold {
		return fmt.Errorf("keepalive.token_lifetime %v is shorter than %v, the longest a token is held between cycles", lifetime, hold)
	}
	return nil
}

// TokenHold is the longest the tracker keeps one keepalive token: a full
// sleep interval, or the longest restart delay after a sensor failure.
func (c *DaemonConfig) TokenHold() time.Duration {
	restart := c.GetRestartInterval()
	if c.GetRestartMode() == RestartExponential {
		restart = c.GetRestartMaxInterval()
	}
	return max(c.TrackerConfig().SleepInterval(), restart)
}

// TrackerConfig returns the duty-cycle parameters.
func (c *DaemonConfig) TrackerConfig() location.TrackerConfig {
	cfg := location.DefaultTrackerConfig()
	if c.Tracker.ActiveWindowSeconds != nil {
		cfg.ActiveWindowSeconds = *c.Tracker.ActiveWindowSeconds
	}
	if c.Tracker.SleepIntervalSeconds != nil {
		cfg.SleepIntervalSeconds = *c.Tracker.SleepIntervalSeconds
	}
	return cfg
}

// GetRestartMode returns the restart_mode value or the default.
func (c *DaemonConfig) GetRestartMode() string {
	if c.Tracker.RestartMode == nil || *c.Tracker.RestartMode == "" {
		return RestartConstant
	}
	return *c.Tracker.RestartMode
}

// GetRestartInterval returns the restart_interval value or the default.
func (c *DaemonConfig) GetRestartInterval() time.Duration {
	return durationOr(c.Tracker.RestartInterval, location.DefaultRestartDelay)
}

// GetRestartMaxInterval returns the restart_max_interval value or the
// default. It is never shorter than the restart interval.
func (c *DaemonConfig) GetRestartMaxInterval() time.Duration {
	d := durationOr(c.Tracker.RestartMaxInterval, 10*time.Minute)
	if c.Tracker.RestartMaxInterval == nil {
		d = max(d, c.GetRestartInterval())
	}
	return d
}

// RestartPolicy builds the policy selected by restart_mode.
func (c *DaemonConfig) RestartPolicy() *location.RestartPolicy {
	if c.GetRestartMode() == RestartExponential {
		return location.ExponentialRestart(c.GetRestartInterval(), c.GetRestartMaxInterval())
	}
	return location.ConstantRestart(c.GetRestartInterval())
}

// GetSerialEnabled returns the serial.enabled value or the default.
func (c *DaemonConfig) GetSerialEnabled() bool {
	if c.Serial.Enabled == nil {
		return true
	}
	return *c.Serial.Enabled
}

// GetSerialPort returns the serial.port value or the default.
func (c *DaemonConfig) GetSerialPort() string {
	if c.Serial.Port == nil || *c.Serial.Port == "" {
		return "/dev/ttyACM0"
	}
	return *c.Serial.Port
}

// GetPortOptions returns the serial.options value or 9600 8N1.
func (c *DaemonConfig) GetPortOptions() serialmux.PortOptions {
	if c.Serial.Options == nil {
		return serialmux.PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return *c.Serial.Options
}

// GetUERE returns the user equivalent range error used to turn HDOP into
// meters.
func (c *DaemonConfig) GetUERE() float64 {
	if c.Serial.UERE == nil {
		return 5
	}
	return *c.Serial.UERE
}

// GetDBPath returns the storage.db_path value or the default.
func (c *DaemonConfig) GetDBPath() string {
	if c.Storage.DBPath == nil || *c.Storage.DBPath == "" {
		return "position.db"
	}
	return *c.Storage.DBPath
}

// GetRetention returns how long samples are kept, or 0 to keep them
// forever.
func (c *DaemonConfig) GetRetention() time.Duration {
	if c.Storage.RetentionDays == nil {
		return 30 * 24 * time.Hour
	}
	return time.Duration(*c.Storage.RetentionDays) * 24 * time.Hour
}

// GetListen returns the http.listen value or the default.
func (c *DaemonConfig) GetListen() string {
	if c.HTTP.Listen == nil || *c.HTTP.Listen == "" {
		return ":8080"
	}
	return *c.HTTP.Listen
}

// GetTokenLifetime returns the keepalive.token_lifetime value or the
// default.
func (c *DaemonConfig) GetTokenLifetime() time.Duration {
	return durationOr(c.Keepalive.TokenLifetime, 180*time.Second)
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
