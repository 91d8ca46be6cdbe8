// Package provenance derives stable, compact identifiers for confirmed
// mentions. An identifier encodes entity, alias text, source document and
// position, so a fact can be traced back without a database lookup.
package provenance

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// formatPrefix marks the encoding version so future encodings can coexist
// with identifiers already persisted
const formatPrefix = "m1."

// Mention is the decoded form of a provenance identifier
type Mention struct {
	EntityID   uuid.UUID
	Alias      string
	DocumentID string
	Position   int
}

// Encode packs the mention tuple into a printable token safe for URLs,
// logs and citations. Equivalent tuples always yield the same identifier;
// any field change yields a different one.
func Encode(entityID uuid.UUID, alias string, documentID string, position int) string {
	aliasBytes := []byte(alias)
	docBytes := []byte(documentID)

	buf := make([]byte, 0, 16+2*binary.MaxVarintLen64+len(aliasBytes)+len(docBytes)+binary.MaxVarintLen64)
	buf = append(buf, entityID[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(aliasBytes)))
	buf = append(buf, aliasBytes...)
	buf = binary.AppendUvarint(buf, uint64(len(docBytes)))
	buf = append(buf, docBytes...)
	buf = binary.AppendUvarint(buf, uint64(position))

	return formatPrefix + base64.RawURLEncoding.EncodeToString(buf)
}

// Decode is the exact inverse of Encode
func Decode(id string) (*Mention, error) {
	if !strings.HasPrefix(id, formatPrefix) {
		return nil, fmt.Errorf("unknown provenance format: %q", id)
	}

	buf, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(id, formatPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode provenance payload: %w", err)
	}
	if len(buf) < 16 {
		return nil, fmt.Errorf("provenance payload too short: %d bytes", len(buf))
	}

	var entityID uuid.UUID
	copy(entityID[:], buf[:16])
	rest := buf[16:]

	alias, rest, err := readField(rest)
	if err != nil {
		return nil, fmt.Errorf("decode alias: %w", err)
	}

	documentID, rest, err := readField(rest)
	if err != nil {
		return nil, fmt.Errorf("decode document id: %w", err)
	}

	position, n := binary.Uvarint(rest)
	if n <= 0 || n != len(rest) {
		return nil, fmt.Errorf("decode position: malformed trailing bytes")
	}

	return &Mention{
		EntityID:   entityID,
		Alias:      alias,
		DocumentID: documentID,
		Position:   int(position),
	}, nil
}

// readField reads one uvarint length-prefixed string field
func readField(buf []byte) (string, []byte, error) {
	length, n := binary.Uvarint(buf)
	if n <= 0 {
		return "", nil, fmt.Errorf("malformed length prefix")
	}
	buf = buf[n:]
	if uint64(len(buf)) < length {
		return "", nil, fmt.Errorf("field shorter than declared length")
	}
	return string(buf[:length]), buf[length:], nil
}
