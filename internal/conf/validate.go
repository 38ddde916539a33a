package conf

import (
	"fmt"
	"net/url"
	"strconv"
)

// ValidateSettings checks the loaded settings for configuration mistakes
// that would otherwise only show up at runtime.
func ValidateSettings(settings *Settings) error {
	if settings.WebServer.Port != "" {
		port, err := strconv.Atoi(settings.WebServer.Port)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid webserver port: %q", settings.WebServer.Port)
		}
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable either sqlite or mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return fmt.Errorf("both sqlite and mysql outputs enabled, pick one")
	}

	if settings.Storage.AudioDir == "" {
		return fmt.Errorf("storage.audiodir must not be empty")
	}
	if settings.Storage.MaxUploadMB <= 0 {
		return fmt.Errorf("storage.maxuploadmb must be positive, got %d", settings.Storage.MaxUploadMB)
	}

	if settings.Classifier.Enabled {
		if settings.Classifier.Endpoint == "" {
			return fmt.Errorf("classifier enabled but no endpoint configured")
		}
		if _, err := url.ParseRequestURI(settings.Classifier.Endpoint); err != nil {
			return fmt.Errorf("invalid classifier endpoint %q: %w", settings.Classifier.Endpoint, err)
		}
		if settings.Classifier.Timeout <= 0 {
			return fmt.Errorf("classifier timeout must be positive")
		}
	}

	if settings.Monitor.HeartbeatStaleAfter <= 0 {
		return fmt.Errorf("monitor.heartbeatstaleafter must be positive")
	}
	if settings.Monitor.SweepInterval <= 0 {
		return fmt.Errorf("monitor.sweepinterval must be positive")
	}

	return nil
}
