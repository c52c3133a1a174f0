package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"time"

	"escrowd/integrations/journal"
)

// JournalCSV builds a CSV export of journal entries and returns the serialised
// data alongside a SHA-256 checksum of the payload.
func JournalCSV(entries []journal.Entry) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "sequence", "type", "escrow_id", "occurred_at", "attributes"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, entry := range entries {
		record := []string{
			entry.ID.String(),
			fmt.Sprintf("%d", entry.Sequence),
			entry.Type,
			entry.EscrowID,
			entry.OccurredAt.UTC().Format(time.RFC3339Nano),
			entry.Attributes,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
