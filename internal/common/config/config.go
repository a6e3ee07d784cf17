package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MYSAGRA"

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	Name     string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns" split_words:"true"`
}

func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode)
}

type MQ struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"tls" split_words:"true"`
	Exchange string `yaml:"exchange"`
}

func (m MQ) Validate() error {
	if m.Host == "" || m.User == "" || m.Exchange == "" {
		return errors.New("rabbitmq config incomplete")
	}
	return nil
}

type Server struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	RequestTimeout  time.Duration `yaml:"request_timeout" split_words:"true"`
}

type Tickets struct {
	Timezone string `yaml:"timezone"`
}

// Location loads the zone the ticket day is pinned to.
func (t Tickets) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

type Broadcast struct {
	Buffer    int           `yaml:"buffer"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type DisplayCode struct {
	Alphabet  string `yaml:"alphabet"`
	MinLength uint8  `yaml:"min_length" split_words:"true"`
}

type Log struct {
	Level string `yaml:"level"`
}

type App struct {
	Database    DB          `yaml:"database" envconfig:"DATABASE"`
	Rabbit      MQ          `yaml:"rabbitmq" envconfig:"RABBITMQ"`
	Server      Server      `yaml:"server" envconfig:"SERVER"`
	Tickets     Tickets     `yaml:"tickets" envconfig:"TICKETS"`
	Broadcast   Broadcast   `yaml:"broadcast" envconfig:"BROADCAST"`
	DisplayCode DisplayCode `yaml:"display_code" envconfig:"DISPLAY_CODE"`
	Log         Log         `yaml:"log" envconfig:"LOG"`
}

func Defaults() App {
	return App{
		Database: DB{Port: 5432, SSLMode: "disable", MaxConns: 10},
		Rabbit:   MQ{Port: 5672, VHost: "/", Exchange: "pos_events_fanout"},
		Server: Server{
			Port:            3000,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Tickets:     Tickets{Timezone: "Europe/Rome"},
		Broadcast:   Broadcast{Buffer: 32, Heartbeat: 15 * time.Second},
		DisplayCode: DisplayCode{Alphabet: "K3GQ7XMT2WZ9BHNC5RJ8LPV4FYD6S", MinLength: 6},
		Log:         Log{Level: "info"},
	}
}

// Load reads path on top of Defaults and then applies MYSAGRA_* environment
// overrides. An empty path skips the file. Validation is left to the caller,
// which knows which sections its mode needs.
func Load(path string) (App, error) {
	a := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return App{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &a); err != nil {
			return App{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &a); err != nil {
		return App{}, fmt.Errorf("env overrides: %w", err)
	}
	return a, nil
}

// Validate checks everything the order service needs.
func (a App) Validate() error {
	var errs []error
	if a.Database.Host == "" || a.Database.User == "" || a.Database.Name == "" {
		errs = append(errs, errors.New("database config incomplete"))
	}
	if a.Rabbit.Enabled {
		errs = append(errs, a.Rabbit.Validate())
	}
	if a.Server.Port <= 0 || a.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be in [1, 65535]: %d", a.Server.Port))
	}
	if _, err := a.Tickets.Location(); err != nil {
		errs = append(errs, fmt.Errorf("tickets timezone %q: %w", a.Tickets.Timezone, err))
	}
	if a.Broadcast.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("broadcast buffer must be positive: %d", a.Broadcast.Buffer))
	}
	if a.Broadcast.Heartbeat <= 0 {
		errs = append(errs, fmt.Errorf("broadcast heartbeat must be positive: %s", a.Broadcast.Heartbeat))
	}
	return errors.Join(errs...)
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
