package models

import (
	"fmt"
	"strings"

	"warden/pkg/platform/privacy"
)

// KeyPrefix names the caller identity a key is scoped to.
type KeyPrefix string

const (
	KeyPrefixIP      KeyPrefix = "ip"
	KeyPrefixSubject KeyPrefix = "subject"
)

// Key is a counter key composed of route class and caller identity.
type Key struct {
	class      RouteClass
	prefix     KeyPrefix
	identifier string
	raw        string
}

func NewKey(class RouteClass, prefix KeyPrefix, identifier string) Key {
	return Key{
		class:      class,
		prefix:     prefix,
		identifier: sanitizeKeySegment(identifier),
		raw:        identifier,
	}
}

func (k Key) Class() RouteClass {
	return k.class
}

func (k Key) Prefix() KeyPrefix {
	return k.prefix
}

// Identifier returns the caller identity as given, before escaping.
func (k Key) Identifier() string {
	return k.raw
}

// String returns the storage key, e.g. "login:ip:203.0.113.7".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.class, k.prefix, k.identifier)
}

// Redacted is String with IP identifiers reduced to their network, for audit
// records and logs.
func (k Key) Redacted() string {
	if k.prefix != KeyPrefixIP {
		return k.String()
	}
	return fmt.Sprintf("%s:%s:%s", k.class, k.prefix, sanitizeKeySegment(privacy.AnonymizeIP(k.raw)))
}

// sanitizeKeySegment escapes the delimiter so a caller-controlled identifier
// cannot address another caller's counter.
//
// Escape rules (order matters):
//  1. '_' becomes '__'
//  2. ':' becomes '_c'
//
// The mapping is injective: "a:b" → "a_cb", "a_cb" → "a__cb".
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
