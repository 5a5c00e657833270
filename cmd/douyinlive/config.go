package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	douyin "github.com/zlowly/AsyncDouyinLiveWebFetcher"
)

type config struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SignScript        string        `mapstructure:"sign_script"`
	UserAgent         string        `mapstructure:"user_agent"`
	EventLogDir       string        `mapstructure:"event_log_dir"`
	Verbose           bool          `mapstructure:"verbose"`
}

// loadConfig reads the optional config file and the DOUYINLIVE_* environment
// variables. Missing file with no explicit --config is fine; defaults apply.
func loadConfig(cfgFile string) (*config, error) {
	v := viper.New()
	v.SetDefault("heartbeat_interval", douyin.DefaultHeartbeatInterval)
	v.SetDefault("sign_script", "scripts/sign.js")
	v.SetDefault("user_agent", douyin.DefaultUserAgent)
	v.SetDefault("event_log_dir", ".")
	v.SetDefault("verbose", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("douyinlive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DOUYINLIVE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
