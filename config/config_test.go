package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unkn0wn-root/asidecache/codec"
	"github.com/unkn0wn-root/asidecache/provider/bigcache"
)

const sample = `
redis:
  addr: localhost:6379
  db: 2
  dial_timeout: 1500ms
heartbeat:
  interval: 3s
cache:
  default_ttl_seconds: 600
  ttl_seconds:
    widget: 3600
  fallback: bigcache
  codec: msgpack
write_back:
  workers: 8
`

func TestParse(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	c, err := ParseBytes([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Redis.Addr != "localhost:6379" || c.Redis.DB != 2 || c.Redis.DialTimeout != 1500*time.Millisecond {
		t.Fatalf("redis section %+v", c.Redis)
	}
	if c.Heartbeat.Interval != 3*time.Second || c.WriteBack.Workers != 8 {
		t.Fatalf("heartbeat/write_back %+v %+v", c.Heartbeat, c.WriteBack)
	}

	ttl := c.TTL()
	if ttl.Default != 10*time.Minute || ttl.For("widget") != time.Hour || ttl.For("other") != 10*time.Minute {
		t.Fatalf("ttl %+v", ttl)
	}
	if _, ok := c.Codec().(codec.Msgpack); !ok {
		t.Fatalf("codec %T", c.Codec())
	}
	o := c.RedisOptions()
	if o.Addr != "localhost:6379" || o.DB != 2 {
		t.Fatalf("redis options %+v", o)
	}

	r, err := c.RegionFactory()("widget", time.Minute)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	defer r.Close(context.Background())
	if _, ok := r.(*bigcache.Region); !ok {
		t.Fatalf("want bigcache region, got %T", r)
	}
}

func TestEnvOverridesAddr(t *testing.T) {
	t.Setenv(EnvRedisAddr, "redis.internal:6380")
	c, err := ParseBytes([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("addr=%q", c.Redis.Addr)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	c, err := ParseBytes([]byte("redis: {addr: 'x:1'}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := c.Codec().(codec.JSON); !ok {
		t.Fatalf("default codec %T", c.Codec())
	}
	if ttl := c.TTL(); ttl.For("any") != 0 {
		t.Fatalf("no TTL configured means no expiry, got %v", ttl.For("any"))
	}
	m := c.MonitorOptions(nil, nil)
	if m.Interval != 0 || m.Timeout != 0 {
		t.Fatalf("unset heartbeat should leave monitor defaults")
	}
}

func TestInvalid(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	cases := map[string]string{
		"missing addr": "cache: {default_ttl_seconds: 1}\n",
		"negative ttl": "redis: {addr: 'x:1'}\ncache: {ttl_seconds: {widget: -1}}\n",
		"bad fallback": "redis: {addr: 'x:1'}\ncache: {fallback: memcached}\n",
		"bad codec":    "redis: {addr: 'x:1'}\ncache: {codec: xml}\n",
	}
	for name, doc := range cases {
		if _, err := ParseBytes([]byte(doc)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: want ErrInvalid, got %v", name, err)
		}
	}
	if _, err := ParseBytes([]byte("redis: {addr: 'x:1', bogus: 1}\n")); err == nil {
		t.Fatalf("unknown keys must be rejected")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	path := filepath.Join(t.TempDir(), "cache.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestZeroNamespaceTTLOverridesDefault(t *testing.T) {
	t.Setenv(EnvRedisAddr, "")
	c, err := ParseBytes([]byte("redis: {addr: 'x:1'}\ncache: {default_ttl_seconds: 60, ttl_seconds: {gadget: 0}}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ttl := c.TTL()
	if ttl.For("gadget") != 0 || ttl.For("widget") != time.Minute {
		t.Fatalf("gadget=%v widget=%v", ttl.For("gadget"), ttl.For("widget"))
	}
}
