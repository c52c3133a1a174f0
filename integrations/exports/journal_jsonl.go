package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"escrowd/integrations/journal"
)

// JournalJSONL builds a JSON Lines export of journal entries and returns the
// serialised payload alongside a checksum.
func JournalJSONL(entries []journal.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, entry := range entries {
		attrs, err := entry.Attrs()
		if err != nil {
			return nil, "", err
		}
		payload := map[string]interface{}{
			"id":          entry.ID.String(),
			"sequence":    entry.Sequence,
			"type":        entry.Type,
			"escrow_id":   entry.EscrowID,
			"occurred_at": entry.OccurredAt.UTC().Format(time.RFC3339Nano),
			"attributes":  attrs,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
