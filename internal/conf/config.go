// Package conf holds the application configuration, loaded from a YAML
// config file, environment variables and command line flags via viper.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings contains all runtime configuration for CoughWatch-Go.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this CoughWatch node
		Log  LogConfig // logging configuration
	}

	WebServer struct {
		Debug   bool   // true to enable debug mode
		Port    string // port for web server
		LogPath string // path for HTTP access log
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to enable sqlite output
			Path    string // path to sqlite database
		}
		MySQL struct {
			Enabled  bool   // true to enable mysql output
			Username string // username for mysql database
			Password string // password for mysql database
			Database string // database name for mysql database
			Host     string // host for mysql database
			Port     string // port for mysql database
		}
	}

	Storage struct {
		AudioDir    string // directory where uploaded cough audio is stored
		MaxUploadMB int    // maximum accepted upload size in megabytes
	}

	Classifier struct {
		Enabled  bool          // true to forward uploads to the external classifier
		Endpoint string        // URL of the external classification service
		Timeout  time.Duration // per-submission timeout
		Workers  int           // dispatcher worker count
		Queue    int           // dispatcher queue depth
	}

	Security struct {
		SessionSecret   string // secret for session cookie signing
		SessionMaxAge   int    // session lifetime in seconds
		RedirectToHTTPS bool   // true when cookies should be marked secure
		DeviceAPIKey    string // pre-shared key for edge device endpoints

		// Initial admin account created at startup when no account with
		// AdminEmail exists yet. All three must be set to take effect.
		AdminEmail    string
		AdminUsername string
		AdminPassword string
	}

	Monitor struct {
		HeartbeatStaleAfter time.Duration // window after which a silent device goes OFFLINE
		SweepInterval       time.Duration // how often the offline sweep runs
	}

	EventBus struct {
		BufferSize int // publish buffer depth
		Workers    int // fan-out worker count
	}
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a new Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the shared settings instance loaded by Load, or nil when
// configuration has not been loaded yet.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/coughwatch-go")
	viper.AddConfigPath("/etc/coughwatch-go")

	viper.SetEnvPrefix("coughwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file is fine, defaults plus env and flags apply.
	}

	return nil
}
