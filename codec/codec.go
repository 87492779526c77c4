// Package codec provides the encode/decode capability used by the
// repositories. A single Codec serves every registered type, so it works on
// `any` rather than a type parameter.
package codec

// Codec encodes values to bytes and decodes bytes into a pointer.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, out any) error
}
