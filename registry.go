package asidecache

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/unkn0wn-root/asidecache/internal/util"
)

// Multiplicity says whether a type is cached once or per id.
type Multiplicity uint8

const (
	// Singleton types have exactly one cached instance, stored under the bare namespace.
	Singleton Multiplicity = iota
	// Keyed types are stored under namespace:id.
	Keyed
)

func (m Multiplicity) String() string {
	if m == Keyed {
		return "keyed"
	}
	return "singleton"
}

// TTLConfig maps namespace tokens to expiry. A zero or negative duration
// means no expiry.
type TTLConfig struct {
	Default      time.Duration
	PerNamespace map[string]time.Duration
}

// For returns the namespace override, else Default, else 0 (no expiry).
// An override is authoritative even when it is 0: that namespace never
// expires regardless of Default.
func (c TTLConfig) For(namespace string) time.Duration {
	if d, ok := c.PerNamespace[namespace]; ok {
		return max(d, 0)
	}
	if c.Default > 0 {
		return c.Default
	}
	return 0
}

// TypeKey is the immutable registry entry of one Go type.
type TypeKey struct {
	typ          reflect.Type
	namespace    string
	multiplicity Multiplicity
	ttl          time.Duration
}

func (k TypeKey) Type() reflect.Type         { return k.typ }
func (k TypeKey) Namespace() string          { return k.namespace }
func (k TypeKey) Multiplicity() Multiplicity { return k.multiplicity }

// TTL is the expiry applied on write; 0 means none.
func (k TypeKey) TTL() time.Duration { return k.ttl }

// Key builds the storage key. Singleton types take no fragments and Keyed
// types need at least one.
func (k TypeKey) Key(fragments ...string) (string, error) {
	switch {
	case k.multiplicity == Singleton && len(fragments) > 0:
		return "", k.usage("key")
	case k.multiplicity == Keyed && len(fragments) == 0:
		return "", k.usage("key")
	}
	return util.Join(k.namespace, fragments...), nil
}

func (k TypeKey) check(want Multiplicity, op string) error {
	if k.multiplicity != want {
		return k.usage(op)
	}
	return nil
}

func (k TypeKey) usage(op string) error {
	return &UsageError{Op: op, Type: k.typ.String(), Namespace: k.namespace, Multiplicity: k.multiplicity}
}

// Registration is one row of the static registration table.
type Registration struct {
	typ          reflect.Type
	namespace    string
	multiplicity Multiplicity
}

// Register declares that values of T are cached under namespace.
func Register[T any](namespace string, m Multiplicity) Registration {
	return Registration{typ: typeOf[T](), namespace: namespace, multiplicity: m}
}

// Registry maps Go types to TypeKeys. It is built once and never mutated,
// so lookups take no locks.
type Registry struct {
	byType map[reflect.Type]TypeKey
	byNS   map[string]TypeKey
	names  []string
	ttl    TTLConfig
}

// NewRegistry validates the registration table: one entry per type,
// globally unique namespace tokens free of the key delimiter.
func NewRegistry(ttl TTLConfig, regs ...Registration) (*Registry, error) {
	r := &Registry{
		byType: make(map[reflect.Type]TypeKey, len(regs)),
		byNS:   make(map[string]TypeKey, len(regs)),
		ttl:    TTLConfig{Default: ttl.Default, PerNamespace: make(map[string]time.Duration, len(ttl.PerNamespace))},
	}
	for ns, d := range ttl.PerNamespace {
		r.ttl.PerNamespace[ns] = d
	}

	for _, reg := range regs {
		if reg.typ == nil {
			return nil, &RegistrationError{What: "type", Name: "<nil>", Err: ErrInvalidUsage}
		}
		if err := util.ValidateToken(reg.namespace); err != nil {
			return nil, &RegistrationError{What: "namespace", Name: reg.namespace, Err: fmt.Errorf("%w: %v", ErrInvalidKey, err)}
		}
		if _, dup := r.byType[reg.typ]; dup {
			return nil, &RegistrationError{What: "type", Name: reg.typ.String(), Err: ErrDuplicateRegistration}
		}
		if _, dup := r.byNS[reg.namespace]; dup {
			return nil, &RegistrationError{What: "namespace", Name: reg.namespace, Err: ErrDuplicateRegistration}
		}
		k := TypeKey{
			typ:          reg.typ,
			namespace:    reg.namespace,
			multiplicity: reg.multiplicity,
			ttl:          r.ttl.For(reg.namespace),
		}
		r.byType[reg.typ] = k
		r.byNS[reg.namespace] = k
		r.names = append(r.names, reg.namespace)
	}
	sort.Strings(r.names)
	return r, nil
}

// Resolve returns the entry of t or ErrUnregisteredType.
func (r *Registry) Resolve(t reflect.Type) (TypeKey, error) {
	k, ok := r.byType[t]
	if !ok {
		return TypeKey{}, fmt.Errorf("%w: %v", ErrUnregisteredType, t)
	}
	return k, nil
}

// Lookup returns the entry registered under namespace.
func (r *Registry) Lookup(namespace string) (TypeKey, error) {
	k, ok := r.byNS[namespace]
	if !ok {
		return TypeKey{}, fmt.Errorf("%w: namespace %q", ErrUnregisteredType, namespace)
	}
	return k, nil
}

// ResolveType is the generic form of Resolve.
func ResolveType[T any](r *Registry) (TypeKey, error) {
	return r.Resolve(typeOf[T]())
}

// Namespaces lists every registered namespace, sorted.
func (r *Registry) Namespaces() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// TTL returns the expiry for any region name, registered or not.
func (r *Registry) TTL(namespace string) time.Duration {
	return r.ttl.For(namespace)
}
