package guard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUncanonicalKey is returned for keys that cannot be serialized, such as
// keys holding channels, functions or NaN.
var ErrUncanonicalKey = errors.New("guard: key cannot be canonicalized")

// Key is an ordered tuple identifying one logical operation. Elements may be
// primitives, slices, maps or structs. Element order is significant; map keys
// are not, they are sorted during canonicalization.
type Key []any

// Canonicalize converts a key into the string identity used for lookups.
// A Key or []any is used as the tuple itself, any other value is treated as a
// single-element tuple, so "x" and Key{"x"} resolve to the same entry.
func Canonicalize(key any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(asKey(key)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUncanonicalKey, err)
	}

	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func asKey(key any) Key {
	switch k := key.(type) {
	case Key:
		if k == nil {
			return Key{}
		}
		return k
	case []any:
		if k == nil {
			return Key{}
		}
		return Key(k)
	default:
		return Key{k}
	}
}

// mustCanonicalize treats an unserializable key as a programmer error.
func mustCanonicalize(key any) string {
	canonical, err := Canonicalize(key)
	if err != nil {
		panic(err)
	}
	return canonical
}
