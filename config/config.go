// Package config loads asidecache settings from YAML.
//
//	redis:
//	  addr: localhost:6379
//	  dial_timeout: 2s
//	heartbeat:
//	  interval: 5s
//	  timeout: 2s
//	cache:
//	  default_ttl_seconds: 600
//	  ttl_seconds:
//	    widget: 3600
//	    session: 0 # never expires, even with a default
//	  fallback: ristretto
//	  codec: msgpack
//	write_back:
//	  workers: 4
//	  queue: 1024
//
// ASIDECACHE_REDIS_ADDR, when set, replaces redis.addr.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/asidecache"
	"github.com/unkn0wn-root/asidecache/codec"
	pr "github.com/unkn0wn-root/asidecache/provider"
	"github.com/unkn0wn-root/asidecache/provider/bigcache"
	"github.com/unkn0wn-root/asidecache/provider/ristretto"
)

const EnvRedisAddr = "ASIDECACHE_REDIS_ADDR"

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Redis     Redis     `yaml:"redis"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Cache     Cache     `yaml:"cache"`
	WriteBack WriteBack `yaml:"write_back"`
}

type Redis struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type Heartbeat struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Cache struct {
	DefaultTTLSeconds int64            `yaml:"default_ttl_seconds"`
	TTLSeconds        map[string]int64 `yaml:"ttl_seconds"`
	Fallback          string           `yaml:"fallback"` // ristretto (default) | bigcache
	Codec             string           `yaml:"codec"`    // json (default) | msgpack | cbor
}

type WriteBack struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		c.Redis.Addr = addr
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseBytes is Parse for in-memory documents.
func ParseBytes(b []byte) (*Config, error) { return Parse(bytes.NewReader(b)) }

func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required", ErrInvalid)
	}
	if c.Cache.DefaultTTLSeconds < 0 {
		return fmt.Errorf("%w: cache.default_ttl_seconds must not be negative", ErrInvalid)
	}
	for ns, s := range c.Cache.TTLSeconds {
		if s < 0 {
			return fmt.Errorf("%w: cache.ttl_seconds.%s must not be negative", ErrInvalid, ns)
		}
	}
	switch c.Cache.Fallback {
	case "", "ristretto", "bigcache":
	default:
		return fmt.Errorf("%w: unknown cache.fallback %q", ErrInvalid, c.Cache.Fallback)
	}
	switch c.Cache.Codec {
	case "", "json", "msgpack", "cbor":
	default:
		return fmt.Errorf("%w: unknown cache.codec %q", ErrInvalid, c.Cache.Codec)
	}
	return nil
}

// TTL converts the seconds-based settings.
func (c *Config) TTL() asidecache.TTLConfig {
	out := asidecache.TTLConfig{
		Default:      time.Duration(c.Cache.DefaultTTLSeconds) * time.Second,
		PerNamespace: make(map[string]time.Duration, len(c.Cache.TTLSeconds)),
	}
	for ns, s := range c.Cache.TTLSeconds {
		out.PerNamespace[ns] = time.Duration(s) * time.Second
	}
	return out
}

func (c *Config) RedisOptions() *goredis.Options {
	return &goredis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		DialTimeout: c.Redis.DialTimeout,
		ReadTimeout: c.Redis.ReadTimeout,
	}
}

func (c *Config) Codec() codec.Codec {
	switch c.Cache.Codec {
	case "msgpack":
		return codec.Msgpack{}
	case "cbor":
		return codec.MustCBOR(true)
	default:
		return codec.JSON{}
	}
}

// RegionFactory builds fallback regions on the configured engine.
func (c *Config) RegionFactory() pr.RegionFactory {
	if c.Cache.Fallback == "bigcache" {
		return bigcache.Factory(bigcache.Config{
			CleanWindow:        time.Minute,
			MaxEntriesInWindow: 10_000,
			MaxEntrySize:       1024,
			Shards:             64,
		})
	}
	return ristretto.Factory(ristretto.DefaultConfig())
}

// MonitorOptions fills the heartbeat settings; zero values keep the
// monitor defaults.
func (c *Config) MonitorOptions(p asidecache.Pinger, fallback asidecache.Clearer) asidecache.MonitorOptions {
	return asidecache.MonitorOptions{
		Pinger:   p,
		Interval: c.Heartbeat.Interval,
		Timeout:  c.Heartbeat.Timeout,
		Fallback: fallback,
	}
}
