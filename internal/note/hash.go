package note

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns a hex SHA-256 fingerprint of a note's title and
// flattened content. Included on the wire for future drift detection; not
// used for merge decisions.
func ContentHash(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(PlainText(content)))
	return hex.EncodeToString(h.Sum(nil))
}
