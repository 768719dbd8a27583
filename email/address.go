package email

import (
	"fmt"
	"strings"
)

// AddressKind discriminates the two shapes an Address can take.
type AddressKind int

const (
	// KindPair is a display name plus an email address.
	KindPair AddressKind = iota
	// KindBare is a preformatted address string used as-is.
	KindBare
)

// Address is either a (name, email) pair or a bare address string.
// The zero value is an empty pair.
type Address struct {
	Kind  AddressKind
	Name  string
	Email string
	Raw   string
}

// NewAddress returns a pair address. An empty name means no display name.
func NewAddress(name, addr string) Address {
	return Address{Kind: KindPair, Name: name, Email: addr}
}

// Bare returns an address that formats to raw unchanged.
func Bare(raw string) Address {
	return Address{Kind: KindBare, Raw: raw}
}

// Addresses converts plain address strings into pair addresses without names.
func Addresses(addrs ...string) []Address {
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, NewAddress("", a))
	}
	return out
}

// IsZero reports whether the address carries nothing to send to.
func (a Address) IsZero() bool {
	if a.Kind == KindBare {
		return a.Raw == ""
	}
	return a.Email == ""
}

// Mailbox returns the bare email part of the address.
func (a Address) Mailbox() string {
	if a.Kind == KindBare {
		return a.Raw
	}
	return a.Email
}

// String formats the address as "Name <email>", or just the email when
// there is no name. Bare addresses are returned unchanged.
func (a Address) String() string {
	switch a.Kind {
	case KindBare:
		return a.Raw
	default:
		if a.Name == "" {
			return a.Email
		}
		return fmt.Sprintf("%s <%s>", a.Name, a.Email)
	}
}

// FormatAddresses formats each address with String. It returns nil for an
// empty list.
func FormatAddresses(addrs []Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// JoinAddresses formats each address and joins them with a single comma.
func JoinAddresses(addrs []Address) string {
	return strings.Join(FormatAddresses(addrs), ",")
}
