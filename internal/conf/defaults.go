// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "CoughWatch-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "coughwatch.log")

	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.logpath", "logs/web.log")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "coughwatch.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "coughwatch")
	viper.SetDefault("output.mysql.password", "coughwatch")
	viper.SetDefault("output.mysql.database", "coughwatch")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("storage.audiodir", "uploads/")
	viper.SetDefault("storage.maxuploadmb", 25)

	viper.SetDefault("classifier.enabled", false)
	viper.SetDefault("classifier.endpoint", "")
	viper.SetDefault("classifier.timeout", 30*time.Second)
	viper.SetDefault("classifier.workers", 2)
	viper.SetDefault("classifier.queue", 256)

	viper.SetDefault("security.sessionsecret", "")
	viper.SetDefault("security.sessionmaxage", 7*24*60*60)
	viper.SetDefault("security.redirecttohttps", false)
	viper.SetDefault("security.deviceapikey", "")
	viper.SetDefault("security.adminemail", "")
	viper.SetDefault("security.adminusername", "")
	viper.SetDefault("security.adminpassword", "")

	viper.SetDefault("monitor.heartbeatstaleafter", 3*time.Minute)
	viper.SetDefault("monitor.sweepinterval", time.Minute)

	viper.SetDefault("eventbus.buffersize", 1024)
	viper.SetDefault("eventbus.workers", 2)
}
