package asidecache

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/unkn0wn-root/asidecache/internal/util"
)

// KeyFragmenter is implemented by composite id types that render
// themselves. Use JoinFragments to build the result.
type KeyFragmenter interface {
	CacheKeyFragment() (string, error)
}

// JoinFragments joins composite id components with the key delimiter.
// Components may not be empty or contain the delimiter, otherwise two
// different ids could map to the same key.
func JoinFragments(parts ...string) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: empty composite id", ErrInvalidKey)
	}
	for i, p := range parts {
		if err := util.ValidateFragment(p); err != nil {
			return "", fmt.Errorf("%w: component %d %q: %v", ErrInvalidKey, i, p, err)
		}
	}
	return util.Join(parts[0], parts[1:]...), nil
}

type extractFunc func(any) (string, error)

// Extractor renders ids of one concrete type.
type Extractor struct {
	typ reflect.Type
	fn  extractFunc
}

// ExtractorFor wraps fn as the extractor for ids of dynamic type ID.
func ExtractorFor[ID any](fn func(ID) (string, error)) Extractor {
	return Extractor{
		typ: typeOf[ID](),
		fn:  func(v any) (string, error) { return fn(v.(ID)) },
	}
}

// Extractors turns id values into key fragments, dispatching on the
// dynamic type of the id. Built once, read without locks.
type Extractors struct {
	fns map[reflect.Type]extractFunc
}

// NewExtractors returns the built-in extractors for strings, integers and
// floats plus custom ones. Registering a type twice, built-ins included,
// fails with ErrDuplicateRegistration.
func NewExtractors(custom ...Extractor) (*Extractors, error) {
	x := &Extractors{fns: make(map[reflect.Type]extractFunc, 16+len(custom))}
	builtin := []Extractor{
		ExtractorFor(func(s string) (string, error) {
			if err := util.ValidateFragment(s); err != nil {
				return "", fmt.Errorf("%w: id %q: %v", ErrInvalidKey, s, err)
			}
			return s, nil
		}),
		ExtractorFor(func(v int) (string, error) { return strconv.Itoa(v), nil }),
		ExtractorFor(func(v int8) (string, error) { return strconv.FormatInt(int64(v), 10), nil }),
		ExtractorFor(func(v int16) (string, error) { return strconv.FormatInt(int64(v), 10), nil }),
		ExtractorFor(func(v int32) (string, error) { return strconv.FormatInt(int64(v), 10), nil }),
		ExtractorFor(func(v int64) (string, error) { return strconv.FormatInt(v, 10), nil }),
		ExtractorFor(func(v uint) (string, error) { return strconv.FormatUint(uint64(v), 10), nil }),
		ExtractorFor(func(v uint8) (string, error) { return strconv.FormatUint(uint64(v), 10), nil }),
		ExtractorFor(func(v uint16) (string, error) { return strconv.FormatUint(uint64(v), 10), nil }),
		ExtractorFor(func(v uint32) (string, error) { return strconv.FormatUint(uint64(v), 10), nil }),
		ExtractorFor(func(v uint64) (string, error) { return strconv.FormatUint(v, 10), nil }),
		ExtractorFor(func(v float32) (string, error) { return strconv.FormatFloat(float64(v), 'g', -1, 32), nil }),
		ExtractorFor(func(v float64) (string, error) { return strconv.FormatFloat(v, 'g', -1, 64), nil }),
	}
	for _, e := range append(builtin, custom...) {
		if err := x.add(e); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (x *Extractors) add(e Extractor) error {
	if e.typ == nil || e.fn == nil {
		return &RegistrationError{What: "extractor", Name: "<nil>", Err: ErrInvalidUsage}
	}
	// Lookup goes by the id's concrete type, so an interface key would never match.
	if e.typ.Kind() == reflect.Interface {
		return &RegistrationError{What: "extractor", Name: e.typ.String(),
			Err: fmt.Errorf("%w: extractors need a concrete id type", ErrInvalidUsage)}
	}
	if _, dup := x.fns[e.typ]; dup {
		return &RegistrationError{What: "extractor", Name: e.typ.String(), Err: ErrDuplicateRegistration}
	}
	x.fns[e.typ] = e.fn
	return nil
}

// Extract renders id. Registered extractors win; otherwise a KeyFragmenter
// renders itself. Anything else fails with ErrUnregisteredType.
func (x *Extractors) Extract(id any) (string, error) {
	if isNil(id) {
		return "", fmt.Errorf("%w: nil id", ErrInvalidKey)
	}
	var (
		frag string
		err  error
	)
	if fn, ok := x.fns[reflect.TypeOf(id)]; ok {
		frag, err = fn(id)
	} else if kf, ok := id.(KeyFragmenter); ok {
		frag, err = kf.CacheKeyFragment()
	} else {
		return "", fmt.Errorf("%w: no key extractor for id type %T", ErrUnregisteredType, id)
	}
	if err != nil {
		return "", err
	}
	if frag == "" {
		return "", fmt.Errorf("%w: id %v rendered an empty fragment", ErrInvalidKey, id)
	}
	return frag, nil
}
