// Package config locates the configuration file for the command-line tools and
// hands back a Viper instance ready for decoding.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Search locations used when no explicit path is given, in priority order.
var searchPaths = []string{
	".",
	"/etc/prelaunch-audit/",
	"$HOME/.prelaunch-audit",
}

// InitViper returns a Viper instance primed with the configuration file. An explicit
// path must exist; otherwise config.yaml (or any supported extension) is searched for
// and its absence is not an error, so defaults and environment variables still apply.
// The second return value is the file that was read, or "" when none was.
func InitViper(path string) (*viper.Viper, string, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", path, err)
		}
		return v, v.ConfigFileUsed(), nil
	}

	v.SetConfigName("config")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, "", nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}
	return v, v.ConfigFileUsed(), nil
}
