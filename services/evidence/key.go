package evidence

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// storageKey derives the object key for one upload:
//
//	YYYY/MM/DD/<upload id>/<filename>
//
// Month and day are zero-padded so keys sort lexicographically by date.
// The filename is reduced to its base name so a crafted name cannot place
// the object outside its date/id prefix. The same key is used for the
// object store write and embedded in the evidence record.
func storageKey(uploadID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s/%s",
		now.Year(), int(now.Month()), now.Day(), uploadID, path.Base(filename))
}
