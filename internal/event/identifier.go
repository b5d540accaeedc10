package event

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Origin tells which store owns an event.
type Origin string

// Origin values.
const (
	OriginOfficial  Origin = "official"
	OriginCommunity Origin = "community"
)

// Label returns the human-readable origin label shown to clients.
func (o Origin) Label() string {
	switch o {
	case OriginOfficial:
		return "Official Event"
	case OriginCommunity:
		return "Community Event"
	default:
		return "Event"
	}
}

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginOfficial || o == OriginCommunity
}

// ParseOrigin parses an origin tag.
func ParseOrigin(s string) (Origin, error) {
	o := Origin(s)
	if !o.Valid() {
		return "", fmt.Errorf("%w: unknown origin %q", ErrInvalidIdentifier, s)
	}
	return o, nil
}

// separator joins origin and native id on the wire.
// Neither origin tags nor validated native ids can contain it.
const separator = "_"

// ErrInvalidIdentifier is returned when an identifier string cannot be parsed.
var ErrInvalidIdentifier = errors.New("invalid event identifier")

// Identifier is the universal event key understood outside each store.
// The zero value is not a valid identifier.
type Identifier struct {
	Origin   Origin
	NativeID string
}

// OfficialIdentifier returns the identifier of a document-store event.
func OfficialIdentifier(objectID string) Identifier {
	return Identifier{Origin: OriginOfficial, NativeID: objectID}
}

// CommunityIdentifier returns the identifier of a relational event.
func CommunityIdentifier(id int64) Identifier {
	return Identifier{Origin: OriginCommunity, NativeID: strconv.FormatInt(id, 10)}
}

// ParseIdentifier parses the wire form "<origin>_<native-id>".
//
// Official native ids must be 24-character lowercase hex object ids and
// community native ids canonical positive base-10 integers, so that
// String(ParseIdentifier(s)) == s for every accepted s.
func ParseIdentifier(s string) (Identifier, error) {
	tag, native, ok := strings.Cut(s, separator)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: %q: missing separator", ErrInvalidIdentifier, s)
	}
	origin, err := ParseOrigin(tag)
	if err != nil {
		return Identifier{}, err
	}
	id := Identifier{Origin: origin, NativeID: native}
	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// Validate checks that the native id has the canonical form of its origin.
func (id Identifier) Validate() error {
	switch id.Origin {
	case OriginOfficial:
		if !isObjectIDHex(id.NativeID) {
			return fmt.Errorf("%w: %q is not an object id", ErrInvalidIdentifier, id.NativeID)
		}
	case OriginCommunity:
		n, err := strconv.ParseInt(id.NativeID, 10, 64)
		if err != nil || n <= 0 || strconv.FormatInt(n, 10) != id.NativeID {
			return fmt.Errorf("%w: %q is not a community id", ErrInvalidIdentifier, id.NativeID)
		}
	default:
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidIdentifier, id.Origin)
	}
	return nil
}

// String returns the wire form.
func (id Identifier) String() string {
	return string(id.Origin) + separator + id.NativeID
}

// IsZero reports whether id is the zero value.
func (id Identifier) IsZero() bool {
	return id.Origin == "" && id.NativeID == ""
}

// CommunityID returns the integer id of a community identifier.
func (id Identifier) CommunityID() (int64, error) {
	if id.Origin != OriginCommunity {
		return 0, fmt.Errorf("%w: %s is not a community identifier", ErrInvalidIdentifier, id)
	}
	return strconv.ParseInt(id.NativeID, 10, 64)
}

// MarshalText implements encoding.TextMarshaler.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identifier) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentifier(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func isObjectIDHex(s string) bool {
	if len(s) != 24 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
