package asidecache

import (
	"errors"
	"fmt"
)

// Configuration errors. They signal programming mistakes and are always
// returned to the caller; store outages never produce them.
var (
	ErrUnregisteredType      = errors.New("asidecache: type is not registered")
	ErrDuplicateRegistration = errors.New("asidecache: duplicate registration")
	ErrInvalidUsage          = errors.New("asidecache: invalid usage")
	ErrInvalidKey            = errors.New("asidecache: invalid key")
)

// ErrWriteBackDropped is reported to Hooks.WriteBackFailed when the
// write-back queue was full or closed.
var ErrWriteBackDropped = errors.New("asidecache: write-back dropped")

// RegistrationError describes a rejected type, namespace or extractor registration.
type RegistrationError struct {
	What string // "type", "namespace", "extractor"
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("asidecache: %s %q: %v", e.What, e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// UsageError is returned when an operation disagrees with the multiplicity
// of its target type.
type UsageError struct {
	Op        string
	Type      string
	Namespace string
	// Multiplicity is the registered multiplicity of Type.
	Multiplicity Multiplicity
}

func (e *UsageError) Error() string {
	if e.Multiplicity == Keyed {
		return fmt.Sprintf("asidecache: %s: multiple instances of %s (%s) can exist; use an operation that takes an id",
			e.Op, e.Type, e.Namespace)
	}
	return fmt.Sprintf("asidecache: %s: only one instance of %s (%s) can exist; no id may be provided",
		e.Op, e.Type, e.Namespace)
}

func (e *UsageError) Unwrap() error { return ErrInvalidUsage }

// ErrNotStored is reported to Hooks.WriteBackFailed when a write-back ran
// but the store did not accept the value.
var ErrNotStored = errors.New("asidecache: value not stored")
