package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityKey names exactly one stored record: a type tag plus its numeric id.
// ID zero means "not yet assigned"; negative ids are provisional keys that
// only live inside a single save call.
type EntityKey struct {
	Type string
	ID   int64
}

// NewKey builds an EntityKey.
func NewKey(typ string, id int64) EntityKey {
	return EntityKey{Type: typ, ID: id}
}

// String renders the stable identity-cache form, e.g. "FixedIp_3". It depends
// on the key alone and never consults a registry or driver.
func (k EntityKey) String() string {
	return fmt.Sprintf("%s_%d", CanonicalName(k.Type), k.ID)
}

// Assigned reports whether the key carries a real, driver-issued id.
func (k EntityKey) Assigned() bool { return k.ID > 0 }

// Provisional reports whether the key is a placeholder issued during simplification.
func (k EntityKey) Provisional() bool { return k.ID < 0 }

// CanonicalName maps a table-style type tag ("fixed_ips") onto the model name
// used for display and identity ("FixedIp"). Names that are already canonical
// are returned unchanged.
func CanonicalName(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parts := strings.FieldsFunc(tag, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	if len(parts) == 0 {
		return ""
	}
	last := len(parts) - 1
	parts[last] = singular(parts[last])
	// Casers carry state and must not be shared across goroutines.
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(caser.String(p))
	}
	return b.String()
}

func singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 1:
		return word[:len(word)-1]
	default:
		return word
	}
}
