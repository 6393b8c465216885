package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	DataFile        string `yaml:"data_file" env:"DATA_FILE" env-default:"games_data.json"`
	UploadsPath     string `yaml:"uploads_path" env:"UPLOADS_PATH" env-default:"static/game_images"`
	ImagesURLPrefix string `yaml:"images_url_prefix" env:"IMAGES_URL_PREFIX" env-default:"/static/game_images"`
	AppSecret       string `yaml:"app_secret" env:"APP_SECRET" env-required:"true"`
	HTTPServer      `yaml:"http_server"`
	Auth            Auth          `yaml:"auth"`
	Clients         ClientsConfig `yaml:"clients"`
	Images          Images        `yaml:"images"`
	Metrics         Metrics       `yaml:"metrics"`
	Tracing         Tracing       `yaml:"tracing"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:5015"`
	Timeout     time.Duration `yaml:"timeout" env-default:"60s"`
	// LongTimeout is the write deadline for routes that walk the whole collection.
	LongTimeout time.Duration `yaml:"long_timeout" env-default:"15m"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	Cors        []string      `yaml:"cors" env-default:"http://localhost:5015"`
}

type Auth struct {
	Password     string        `yaml:"password" env:"AUTH_PASSWORD" env-required:"true"`
	CookieName   string        `yaml:"cookie_name" env-default:"next2play_session"`
	SessionTTL   time.Duration `yaml:"session_ttl" env-default:"720h"`
	SecureCookie bool          `yaml:"secure_cookie" env:"SECURE_COOKIE" env-default:"false"`
}

type Client struct {
	BaseURL   string        `yaml:"base_url" env-default:"https://howlongtobeat.com"`
	Timeout   time.Duration `yaml:"timeout" env-default:"10s"`
	UserAgent string        `yaml:"user_agent" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	PageSize  int           `yaml:"page_size" env-default:"20"`
}

type ClientsConfig struct {
	HLTB Client `yaml:"hltb"`
}

type Images struct {
	// Processor is "magick" to normalize downloads with ImageMagick or "none" to keep them as fetched.
	Processor      string        `yaml:"processor" env:"IMAGE_PROCESSOR" env-default:"magick"`
	ConvertBinary  string        `yaml:"convert_binary" env-default:"convert"`
	IdentifyBinary string        `yaml:"identify_binary" env-default:"identify"`
	Resize         string        `yaml:"resize" env-default:"200x300>"`
	MaxWidth       int           `yaml:"max_width" env-default:"200"`
	MaxHeight      int           `yaml:"max_height" env-default:"300"`
	Quality        int           `yaml:"quality" env-default:"90"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" env-default:"30s"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env-default:"/metrics"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_SAMPLE_RATIO" env-default:"1"`
}

// MustLoad reads the file named by -config (or CONFIG_PATH) and exits on failure.
func MustLoad() *Config {
	configPath := flag.String("config", "", "path to config yaml file")
	flag.Parse()

	cfg, err := Load(fetchPath(*configPath))
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, errors.New("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %s - %w", configPath, err)
	}

	return &cfg, nil
}

func fetchPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}
