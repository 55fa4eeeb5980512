// Package orderkey allocates fractional ordering keys for sibling groups.
//
// Keys are variable-length strings over a base-62 alphabet whose byte order
// equals its digit order, so plain lexical comparison of keys is the sibling
// display order. A new key can always be placed strictly between any two
// distinct keys without touching either neighbor, until the key would exceed
// MaxKeyLen; at that point Between returns ErrExhausted and the caller must
// renormalize the sibling group with Spread.
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

// MaxKeyLen bounds key growth. Midpoint allocation lengthens keys slowly, so
// hitting the cap means a hot spot has been subdivided many times and the
// group is due for renormalization.
const MaxKeyLen = 24

var (
	// ErrExhausted signals that the gap between the neighbors has no room
	// left within MaxKeyLen. Callers renormalize and retry.
	ErrExhausted = errors.New("order key precision exhausted")

	// ErrInvalidKey signals a malformed neighbor key.
	ErrInvalidKey = errors.New("invalid order key")

	// ErrInvalidRange signals left >= right.
	ErrInvalidRange = errors.New("left key must sort before right key")
)

// Validate checks that key is a well-formed order key: non-empty, drawn from
// the alphabet, and not ending in the minimum digit (a trailing '0' would
// leave no room to insert before the key at that depth).
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrInvalidKey)
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(alphabet, key[i]) < 0 {
			return fmt.Errorf("key %q has byte %q outside alphabet: %w", key, key[i], ErrInvalidKey)
		}
	}
	if key[len(key)-1] == alphabet[0] {
		return fmt.Errorf("key %q ends in minimum digit: %w", key, ErrInvalidKey)
	}
	return nil
}

// Between returns a key strictly between left and right. An empty left means
// "before right" (insert at head); an empty right means "after left" (append
// at tail); both empty means the first key of a new sibling group.
func Between(left, right string) (string, error) {
	if left != "" {
		if err := Validate(left); err != nil {
			return "", err
		}
	}
	if right != "" {
		if err := Validate(right); err != nil {
			return "", err
		}
	}
	if left != "" && right != "" && left >= right {
		return "", fmt.Errorf("%w: %q >= %q", ErrInvalidRange, left, right)
	}

	key := midpoint(left, right)
	if len(key) > MaxKeyLen {
		return "", fmt.Errorf("between %q and %q: %w", left, right, ErrExhausted)
	}
	return key, nil
}

// midpoint computes a key strictly between a and b, where an empty a stands
// for minus infinity and an empty b for plus infinity. Requires a < b.
func midpoint(a, b string) string {
	if b != "" {
		// Consume the common prefix, treating a as padded with the minimum
		// digit. b cannot run out first: it would then be a prefix of a and
		// sort before it.
		i := 0
		for ; i < len(b); i++ {
			c := alphabet[0]
			if i < len(a) {
				c = a[i]
			}
			if c != b[i] {
				break
			}
		}
		if i > 0 {
			if i < len(a) {
				return b[:i] + midpoint(a[i:], b[i:])
			}
			return b[:i] + midpoint("", b[i:])
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(alphabet, a[0])
	}
	digitB := base
	if b != "" {
		digitB = strings.IndexByte(alphabet, b[0])
	}
	if digitB-digitA > 1 {
		return string(alphabet[(digitA+digitB)/2])
	}

	// The first digits are consecutive (or equal when a is empty and b
	// starts at the minimum digit). Descend one level.
	if len(b) > 1 {
		return b[:1]
	}
	if a == "" {
		return string(alphabet[0]) + midpoint("", "")
	}
	return a[:1] + midpoint(a[1:], "")
}

// Spread returns n fresh keys in strictly increasing order, evenly spaced
// across the key domain so that every adjacent pair regains full subdivision
// headroom. It is used to rewrite a sibling group during renormalization.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}

	// Pick the shortest length whose key space leaves at least one value of
	// slack between consecutive keys and at both ends.
	length := 1
	capacity := base
	for capacity < (n+1)*2 {
		length++
		capacity *= base
	}

	step := capacity / (n + 1)
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = encodeFixed((i+1)*step, length)
	}
	return keys
}

// encodeFixed renders v as a fixed-width base-62 string, then strips trailing
// minimum digits. Stripping preserves both distinctness and lexical order for
// equal-width encodings.
func encodeFixed(v, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = alphabet[v%base]
		v /= base
	}
	end := width
	for end > 1 && buf[end-1] == alphabet[0] {
		end--
	}
	return string(buf[:end])
}
