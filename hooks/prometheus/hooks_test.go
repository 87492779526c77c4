package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/asidecache"
)

func TestHooksCount(t *testing.T) {
	h := New(prometheus.NewRegistry(), "test")

	h.SelfHeal("widget:w1", "decode")
	h.SelfHeal("widget:w2", "decode")
	h.StoreError("get", errors.New("down"))
	h.WriteBackFailed("widget", asidecache.ErrWriteBackDropped)
	h.WriteBackFailed("widget", asidecache.ErrNotStored)
	h.LivenessChanged(true)
	h.FallbackCleared(3)

	if v := testutil.ToFloat64(h.SelfHeals.WithLabelValues("widget", "decode")); v != 2 {
		t.Fatalf("self heals=%v", v)
	}
	if v := testutil.ToFloat64(h.StoreErrors.WithLabelValues("get")); v != 1 {
		t.Fatalf("store errors=%v", v)
	}
	if v := testutil.ToFloat64(h.WriteBackFailures.WithLabelValues("widget", "dropped")); v != 1 {
		t.Fatalf("dropped write-backs=%v", v)
	}
	if v := testutil.ToFloat64(h.WriteBackFailures.WithLabelValues("widget", "not_stored")); v != 1 {
		t.Fatalf("not stored write-backs=%v", v)
	}
	if v := testutil.ToFloat64(h.RemoteAlive); v != 1 {
		t.Fatalf("alive gauge=%v", v)
	}
	if v := testutil.ToFloat64(h.FallbackClears); v != 3 {
		t.Fatalf("fallback clears=%v", v)
	}

	h.LivenessChanged(false)
	if v := testutil.ToFloat64(h.RemoteAlive); v != 0 {
		t.Fatalf("alive gauge after outage=%v", v)
	}
}

func TestNewRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg, "")
	h.LivenessChanged(true)
	h.StoreError("mget", errors.New("x"))

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatalf("no metrics gathered")
	}
}
