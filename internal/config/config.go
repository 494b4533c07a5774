package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/linecook/internal/schedule"
	"github.com/sadopc/linecook/internal/store"
)

// EnvPath names the environment variable that overrides the config file path.
const EnvPath = "LINECOOK_CONFIG"

const defaultFile = "linecook.yaml"

type Config struct {
	DBPath           string            `yaml:"db_path"`
	SnapshotPath     string            `yaml:"snapshot_path"`
	Timezone         string            `yaml:"timezone"`
	MinTicketSeconds int64             `yaml:"min_ticket_seconds"`
	AutoLogoutAt     string            `yaml:"auto_logout_at"`
	AutoClockOutAt   string            `yaml:"auto_clock_out_at"`
	ManagerCode      string            `yaml:"manager_code"`
	ManagerPins      map[string]string `yaml:"manager_pins"`
	ExportDir        string            `yaml:"export_dir"`
	LogFile          string            `yaml:"log_file"`
	LogLevel         string            `yaml:"log_level"`

	loc *time.Location
}

// Default returns the configuration used when no file is present.
func Default() (*Config, error) {
	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("default db path: %w", err)
	}
	dir := filepath.Dir(dbPath)
	return &Config{
		DBPath:           dbPath,
		SnapshotPath:     filepath.Join(dir, "session_snapshot.json"),
		Timezone:         "America/New_York",
		MinTicketSeconds: 120,
		AutoLogoutAt:     "22:45",
		AutoClockOutAt:   "23:00",
		ManagerCode:      "0000",
		ManagerPins: map[string]string{
			"34":  "Greg",
			"168": "Quinn",
			"90":  "Carol",
			"130": "Toby",
			"79":  "Sara",
		},
		ExportDir: ".",
		LogFile:   filepath.Join(dir, "linecook.log"),
		LogLevel:  "info",
	}, nil
}

// Path returns the config file location: $LINECOOK_CONFIG or ./linecook.yaml.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return defaultFile
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. ${VAR} placeholders are replaced from the environment before
// parsing.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		// A configured pin list replaces the defaults instead of merging.
		defaultPins := cfg.ManagerPins
		cfg.ManagerPins = nil
		if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config: %w", err)
		}
		if cfg.ManagerPins == nil {
			cfg.ManagerPins = defaultPins
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandEnv(content string) string {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		content = strings.ReplaceAll(content, "${"+pair[0]+"}", pair[1])
	}
	return content
}

// Validate checks every field and resolves the timezone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc

	if c.MinTicketSeconds <= 0 {
		return fmt.Errorf("min_ticket_seconds must be positive, got %d", c.MinTicketSeconds)
	}
	if _, err := schedule.ParseAt(c.AutoLogoutAt); err != nil {
		return fmt.Errorf("auto_logout_at: %w", err)
	}
	if _, err := schedule.ParseAt(c.AutoClockOutAt); err != nil {
		return fmt.Errorf("auto_clock_out_at: %w", err)
	}
	if c.ManagerCode == "" {
		return errors.New("manager_code is required")
	}
	for pin := range c.ManagerPins {
		if _, err := strconv.Atoi(pin); err != nil {
			return fmt.Errorf("manager_pins: %q is not numeric", pin)
		}
	}
	if c.DBPath == "" || c.SnapshotPath == "" {
		return errors.New("db_path and snapshot_path are required")
	}
	return nil
}

// Location returns the kitchen's timezone. Validate must have succeeded.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c *Config) LogoutAt() schedule.At {
	at, _ := schedule.ParseAt(c.AutoLogoutAt)
	return at
}

func (c *Config) ClockOutAt() schedule.At {
	at, _ := schedule.ParseAt(c.AutoClockOutAt)
	return at
}

// MinTicket returns the minimum duration a sold ticket needs to be recorded.
func (c *Config) MinTicket() time.Duration {
	return time.Duration(c.MinTicketSeconds) * time.Second
}
