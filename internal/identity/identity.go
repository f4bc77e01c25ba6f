// Package identity defines the key that identifies a launchable entry point.
//
// A Key is a normalized (package, class) pair. Its canonical string form is
// "package/class", which is also how keys are persisted in the registry's
// componentname column. Every diff and cache lookup joins on this type, so
// Parse(k.String()) must return k for every valid key.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a string or pair cannot form a valid Key.
var ErrMalformed = errors.New("malformed identity")

// legacyPrefix wraps identities written by older launcher databases,
// e.g. "ComponentInfo{com.foo/com.foo.Main}".
const legacyPrefix = "ComponentInfo{"

// Key identifies an application entry point. Keys are comparable and can be
// used directly as map keys.
type Key struct {
	Package string
	Class   string
}

// New builds a normalized Key from its two segments.
func New(pkg, class string) (Key, error) {
	k := normalize(pkg, class)
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// MustNew is like New but panics on invalid input. Intended for tests and
// package-level literals.
func MustNew(pkg, class string) Key {
	k, err := New(pkg, class)
	if err != nil {
		panic(err)
	}
	return k
}

// Parse parses the canonical "package/class" form. The short class form
// "com.foo/.Main" and the legacy "ComponentInfo{...}" wrapper are accepted.
func Parse(s string) (Key, error) {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, legacyPrefix) && strings.HasSuffix(raw, "}") {
		raw = raw[len(legacyPrefix) : len(raw)-1]
	}

	idx := strings.IndexByte(raw, '/')
	if idx <= 0 || idx == len(raw)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	k, err := New(raw[:idx], raw[idx+1:])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return k, nil
}

// String returns the canonical "package/class" form.
func (k Key) String() string {
	return k.Package + "/" + k.Class
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.Package == "" && k.Class == ""
}

// Validate checks the segment invariants. A key that New would rewrite,
// such as a short ".Main" class or padded segments, is rejected.
func (k Key) Validate() error {
	switch {
	case k.Package == "":
		return fmt.Errorf("%w: empty package", ErrMalformed)
	case k.Class == "":
		return fmt.Errorf("%w: empty class", ErrMalformed)
	case strings.ContainsAny(k.Package, "/ \t\n"):
		return fmt.Errorf("%w: invalid package %q", ErrMalformed, k.Package)
	case strings.ContainsAny(k.Class, "\n"):
		return fmt.Errorf("%w: invalid class %q", ErrMalformed, k.Class)
	case k != normalize(k.Package, k.Class):
		return fmt.Errorf("%w: %q is not normalized", ErrMalformed, k.String())
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PackagePrefix returns the canonical-form prefix shared by every key of
// pkg. Package names cannot contain '/', so the prefix only matches keys
// whose package segment equals pkg exactly.
func PackagePrefix(pkg string) string {
	return pkg + "/"
}

func normalize(pkg, class string) Key {
	pkg = strings.TrimSpace(pkg)
	class = strings.TrimSpace(class)
	if strings.HasPrefix(class, ".") && pkg != "" {
		class = pkg + class
	}
	return Key{Package: pkg, Class: class}
}
