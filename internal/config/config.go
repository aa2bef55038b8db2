package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string `mapstructure:"mode"`
	ProviderURL string `mapstructure:"provider_url"`
	Token       string `mapstructure:"token"`
	Room        string `mapstructure:"room"`
	DisplayName string `mapstructure:"display_name"`
	AudioDevice string `mapstructure:"audio_device"`
	VideoDevice string `mapstructure:"video_device"`
	UIPort      int    `mapstructure:"ui_port"`
	StaticPath  string `mapstructure:"static_path"`
	LogLevel    string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("provider_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("room", "lobby")
	v.SetDefault("ui_port", 9090)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("CALLVIEW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | UI port: %d | Provider: %s\n", cfg.Mode, cfg.UIPort, cfg.ProviderURL)
	return &cfg, nil
}
