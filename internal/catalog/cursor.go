package catalog

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/graaaaa/eventhub/internal/event"
)

// encodeCursor encodes the position after an event as sortkey|identifier.
func encodeCursor(e Event) string {
	return base64.RawURLEncoding.EncodeToString([]byte(e.sortKey + "|" + e.Identifier.String()))
}

// decodeCursor splits at the last '|'; identifiers never contain one.
func decodeCursor(s string) (key string, id event.Identifier, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", event.Identifier{}, fmt.Errorf("%w: cursor encoding", ErrInvalidQuery)
	}
	str := string(raw)
	i := strings.LastIndexByte(str, '|')
	if i < 0 {
		return "", event.Identifier{}, fmt.Errorf("%w: cursor format", ErrInvalidQuery)
	}
	id, err = event.ParseIdentifier(str[i+1:])
	if err != nil {
		return "", event.Identifier{}, fmt.Errorf("%w: cursor identifier", ErrInvalidQuery)
	}
	return str[:i], id, nil
}
