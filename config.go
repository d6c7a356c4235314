package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigPath      = "./config.yaml"
	DownloadTokenEnv       = "IPLOOKUP_DOWNLOAD_TOKEN"
	defaultListen          = "localhost:12950"
	defaultCacheDir        = "./db"
	defaultDownloadTimeout = 1 * time.Minute
)

type Config struct {
	Listen          string        `yaml:"listen"`
	LogLevel        string        `yaml:"log_level"`
	CacheDir        string        `yaml:"cache_dir"`
	DownloadURL     string        `yaml:"download_url"`
	DownloadToken   string        `yaml:"download_token"`
	DatabaseCode    string        `yaml:"database_code"`
	CSVFileName     string        `yaml:"csv_file_name"`
	CSVPath         string        `yaml:"csv_path"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	Watch           bool          `yaml:"watch"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		LogLevel:        logrus.InfoLevel.String(),
		CacheDir:        defaultCacheDir,
		DownloadURL:     DefaultDownloadURL,
		DatabaseCode:    DefaultDatabaseCode,
		CSVFileName:     DefaultCSVFileName,
		DownloadTimeout: defaultDownloadTimeout,
	}
}

// ParseConfig falls back to defaults when the file does not exist.
func ParseConfig(path string) (*Config, error) {
	conf := DefaultConfig()

	content, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logrus.Debugf("config %s not found, using defaults", path)
	case err != nil:
		return nil, errors.Wrap(err, "unable to read config")
	default:
		if err := yaml.Unmarshal(content, conf); err != nil {
			return nil, errors.Wrapf(err, "unable to parse config %s", path)
		}
	}

	if token := os.Getenv(DownloadTokenEnv); token != "" {
		conf.DownloadToken = token
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}
	if c.DownloadTimeout <= 0 {
		return errors.New("download_timeout must be positive")
	}
	if c.CSVPath == "" {
		if c.DownloadToken == "" {
			return errors.Errorf("download_token (or %s) is required without csv_path", DownloadTokenEnv)
		}
		if c.CacheDir == "" || c.CSVFileName == "" {
			return errors.New("cache_dir and csv_file_name are required without csv_path")
		}
	}
	if c.Watch && c.CSVPath == "" {
		return errors.New("watch requires csv_path")
	}

	return nil
}
