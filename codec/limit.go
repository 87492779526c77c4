package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size at decode
// time. Marshal is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// A payload over the limit fails to decode, which the repositories treat
// like any other corrupt entry: a miss plus a delete of the key.
type Limit struct {
	Inner     Codec
	MaxDecode int // bytes
}

var _ Codec = Limit{}

func (c Limit) Marshal(v any) ([]byte, error) { return c.Inner.Marshal(v) }
func (c Limit) Unmarshal(b []byte, out any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Unmarshal(b, out)
}
