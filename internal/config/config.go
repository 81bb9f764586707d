// Package config loads per-service YAML configuration files.
//
// Every service reads the same envelope:
//
//	conf:
//	  logging: { category, location, format, level }
//	  app:     { ...service-specific keys... }
//
// ${VAR} references in the file are expanded from the environment before
// parsing, and credential fields can be overridden with environment
// variables (MQ_USERNAME, MQ_PASSWORD, DB_USERNAME, DB_PASSWORD, ...).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// defaultPullDelay applies when a polling service omits pull_delay; a
// zero delay would spin against the provider or the jobs table.
const defaultPullDelay = 5

// Logging is the shared logging section.
type Logging struct {
	Category string `yaml:"category"`
	Location string `yaml:"location"`
	Format   string `yaml:"format" validate:"omitempty,oneof=json text"`
	Level    string `yaml:"level" validate:"omitempty,oneof=debug info warning error fatal"`
}

// Credentials carries a username/password pair for the broker or database.
type Credentials struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQ is the broker endpoint. Host may carry an explicit port
// ("broker:5672"); the default AMQP port applies otherwise.
type MQ struct {
	Host        string      `yaml:"host" env:"HOST" validate:"required"`
	Credentials Credentials `yaml:"credentials"`
}

// Database is the relational store endpoint.
type Database struct {
	Host        string      `yaml:"host" env:"HOST" validate:"required"`
	Database    string      `yaml:"database" env:"NAME" validate:"required"`
	Credentials Credentials `yaml:"credentials"`
}

// DSN renders the pgx connection string.
func (d Database) DSN() string {
	host := d.Host
	if !strings.Contains(host, ":") {
		host += ":5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Credentials.Username, d.Credentials.Password),
		Host:     host,
		Path:     "/" + d.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// MktpubApp configures the quote publisher.
type MktpubApp struct {
	PullDelay   int    `yaml:"pull_delay" validate:"gte=0"`
	Exchange    string `yaml:"exchange" validate:"required"`
	Res         string `yaml:"res" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr"`
	MQ          MQ     `yaml:"mq" envPrefix:"MQ_"`
}

// Delay is the pause between provider polls.
func (a MktpubApp) Delay() time.Duration { return time.Duration(a.PullDelay) * time.Second }

// MktaggApp configures the window aggregator.
type MktaggApp struct {
	AggregationWindow int    `yaml:"aggregation_window" validate:"gte=0"`
	StartImmediate    *bool  `yaml:"start_immediate"`
	SubExchange       string `yaml:"sub_exchange" validate:"required"`
	PubExchange       string `yaml:"pub_exchange" validate:"required"`
	MetricsAddr       string `yaml:"metrics_addr"`
	MQ                MQ     `yaml:"mq" envPrefix:"MQ_"`
}

// Window is the tumbling-window length.
func (a MktaggApp) Window() time.Duration {
	return time.Duration(a.AggregationWindow) * time.Second
}

// StartImmediateEnabled reports the initial-window policy; unset means true
// (the first quote closes the initial partial window).
func (a MktaggApp) StartImmediateEnabled() bool {
	return a.StartImmediate == nil || *a.StartImmediate
}

// IngesticksApp configures the tick ingester.
type IngesticksApp struct {
	Exchange    string   `yaml:"exchange" validate:"required"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Database    Database `yaml:"database" envPrefix:"DB_"`
	MQ          MQ       `yaml:"mq" envPrefix:"MQ_"`
}

// SchedpriceApp configures the pricing scheduler.
type SchedpriceApp struct {
	PullDelay   int      `yaml:"pull_delay" validate:"gte=0"`
	WorkQueue   string   `yaml:"work_queue" validate:"required"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Database    Database `yaml:"database" envPrefix:"DB_"`
	MQ          MQ       `yaml:"mq" envPrefix:"MQ_"`
}

// Delay is the pause between scheduling cycles.
func (a SchedpriceApp) Delay() time.Duration { return time.Duration(a.PullDelay) * time.Second }

// PortpriceApp configures the pricing worker.
type PortpriceApp struct {
	WorkQueue   string   `yaml:"work_queue" validate:"required"`
	MetricsAddr string   `yaml:"metrics_addr"`
	Database    Database `yaml:"database" envPrefix:"DB_"`
	MQ          MQ       `yaml:"mq" envPrefix:"MQ_"`
}

// WebsrvApp configures the read-side HTTP service.
type WebsrvApp struct {
	Listen           string   `yaml:"listen" validate:"required"`
	CORSAllowOrigins string   `yaml:"cors_allow_origins"`
	RateLimitPerMin  int      `yaml:"rate_limit_per_min" validate:"gte=0"`
	MetricsAddr      string   `yaml:"metrics_addr"`
	Database         Database `yaml:"database" envPrefix:"DB_"`
}

// Per-service documents (the decoded conf: section).

type Mktpub struct {
	Logging Logging   `yaml:"logging"`
	App     MktpubApp `yaml:"app"`
}

type Mktagg struct {
	Logging Logging   `yaml:"logging"`
	App     MktaggApp `yaml:"app"`
}

type Ingesticks struct {
	Logging Logging       `yaml:"logging"`
	App     IngesticksApp `yaml:"app"`
}

type Schedprice struct {
	Logging Logging       `yaml:"logging"`
	App     SchedpriceApp `yaml:"app"`
}

type Portprice struct {
	Logging Logging      `yaml:"logging"`
	App     PortpriceApp `yaml:"app"`
}

type Websrv struct {
	Logging Logging   `yaml:"logging"`
	App     WebsrvApp `yaml:"app"`
}

func LoadMktpub(path string) (Mktpub, error) {
	var c Mktpub
	if err := load(path, &c); err != nil {
		return Mktpub{}, err
	}
	if c.App.PullDelay == 0 {
		c.App.PullDelay = defaultPullDelay
	}
	return c, nil
}

func LoadMktagg(path string) (Mktagg, error) {
	var c Mktagg
	if err := load(path, &c); err != nil {
		return Mktagg{}, err
	}
	return c, nil
}

func LoadIngesticks(path string) (Ingesticks, error) {
	var c Ingesticks
	if err := load(path, &c); err != nil {
		return Ingesticks{}, err
	}
	return c, nil
}

func LoadSchedprice(path string) (Schedprice, error) {
	var c Schedprice
	if err := load(path, &c); err != nil {
		return Schedprice{}, err
	}
	if c.App.PullDelay == 0 {
		c.App.PullDelay = defaultPullDelay
	}
	return c, nil
}

func LoadPortprice(path string) (Portprice, error) {
	var c Portprice
	if err := load(path, &c); err != nil {
		return Portprice{}, err
	}
	return c, nil
}

func LoadWebsrv(path string) (Websrv, error) {
	var c Websrv
	if err := load(path, &c); err != nil {
		return Websrv{}, err
	}
	if c.App.CORSAllowOrigins == "" {
		c.App.CORSAllowOrigins = "*"
	}
	if c.App.RateLimitPerMin == 0 {
		c.App.RateLimitPerMin = 30
	}
	return c, nil
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func load(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("op=config.load: read %s: %w", path, err)
	}
	var doc struct {
		Conf yaml.Node `yaml:"conf"`
	}
	if err := yaml.Unmarshal([]byte(os.Expand(string(raw), os.Getenv)), &doc); err != nil {
		return fmt.Errorf("op=config.load: parse %s: %w", path, err)
	}
	if doc.Conf.IsZero() {
		return fmt.Errorf("op=config.load: %s: missing top-level conf section", path)
	}
	if err := doc.Conf.Decode(out); err != nil {
		return fmt.Errorf("op=config.load: decode conf: %w", err)
	}
	if err := env.Parse(out); err != nil {
		return fmt.Errorf("op=config.load: env overrides: %w", err)
	}
	if err := getValidator().Struct(out); err != nil {
		return fmt.Errorf("op=config.load: validate: %w", err)
	}
	return nil
}
