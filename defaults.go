package asidecache

import (
	"reflect"
	"time"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
	defaultScanCount     = 100
	defaultWriteFanout   = 16
	defaultWriteWorkers  = 4
	defaultWriteQueue    = 1024
	defaultHealWorkers   = 1
	defaultHealQueue     = 256
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// isNil reports whether v is nil or a nil pointer/map/slice/interface/func/chan.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
