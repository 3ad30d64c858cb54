package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/always-cache/stepper-cache/cache"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin      string      `yaml:"origin"`
	Host        string      `yaml:"host"`
	Port        int         `yaml:"port"`
	Version     string      `yaml:"version"`
	Prefix      string      `yaml:"prefix"`
	Store       string      `yaml:"store"`
	DB          string      `yaml:"db"`
	Redis       RedisConfig `yaml:"redis"`
	Workers     int         `yaml:"workers"`
	Queue       int         `yaml:"queue"`
	Script      string      `yaml:"script"`
	AdminSecret string      `yaml:"adminSecret"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func defaultConfig() Config {
	return Config{
		Port:    8080,
		Version: "v1",
		Prefix:  "stepper-",
		Store:   "sqlite",
		DB:      "cache.db",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "stepper:",
		},
	}
}

// bindFlags registers the CLI flags overriding the config file.
func bindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Origin, "origin", c.Origin, "Origin URL to proxy to")
	fs.StringVar(&c.Host, "host", c.Host, "Hostname of origin")
	fs.IntVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.StringVar(&c.Version, "cache-version", c.Version, "Cache version, partitions of other versions are deleted on startup")
	fs.StringVar(&c.Prefix, "prefix", c.Prefix, "Prefix of the cache partitions")
	fs.StringVar(&c.Store, "store", c.Store, "Storage backend (memory, sqlite, bolt, redis)")
	fs.StringVar(&c.DB, "db", c.DB, "Database file for the sqlite and bolt stores")
	fs.StringVar(&c.Redis.Addr, "redis-addr", c.Redis.Addr, "Redis address")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Number of prefetch workers")
	fs.IntVar(&c.Queue, "queue", c.Queue, "Size of the prefetch queue")
	fs.StringVar(&c.Script, "script", c.Script, "Client script served at /sw.js")
	fs.StringVar(&c.AdminSecret, "admin-secret", c.AdminSecret, "Bearer token required by the /_stepper routes")
}

// getConfig reads the config file, if any, and applies the flags explicitly set in args on top.
func getConfig(fs *flag.FlagSet, args []string) (Config, error) {
	flagged := defaultConfig()
	bindFlags(fs, &flagged)
	configFile := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return flagged, err
	}
	if *configFile == "" {
		return flagged, nil
	}

	config := defaultConfig()
	configBytes, err := os.ReadFile(*configFile)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("could not parse %s: %w", *configFile, err)
	}

	// flags win over the file
	fileValues := flag.NewFlagSet("file", flag.ContinueOnError)
	bindFlags(fileValues, &config)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if fileValues.Lookup(f.Name) == nil {
			return
		}
		if err := fileValues.Set(f.Name, f.Value.String()); err != nil {
			setErr = err
		}
	})
	return config, setErr
}

func (c Config) originURL() (*url.URL, error) {
	if c.Origin == "" {
		return nil, fmt.Errorf("please specify origin")
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL: %s", c.Origin)
	}
	return u, nil
}

func openStore(c Config) (cache.Store, error) {
	switch c.Store {
	case "memory":
		return cache.NewMemStore(), nil
	case "sqlite":
		return cache.NewSQLiteStore(c.DB)
	case "bolt":
		return cache.NewBoltStore(c.DB)
	case "redis":
		return cache.NewRedisStore(cache.RedisStoreConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown store: %s", c.Store)
	}
}
