package blog

import (
	"fmt"
	"strconv"

	"blogapi/internal/storage"
)

const referenceWidth = 5

// NextReference computes the reference for the next record: one past the
// highest reference already stored, zero-padded to five digits. Max-based
// rather than count-based, so a record removed out of band can never cause
// a reference to be handed out twice. A non-numeric stored reference means
// the store is corrupt and is surfaced, never skipped.
func NextReference(existing []storage.PostRecord) (string, error) {
	if len(existing) == 0 {
		return fmt.Sprintf("%0*d", referenceWidth, 1), nil
	}

	maxRef := 0
	for _, rec := range existing {
		n, err := strconv.Atoi(rec.Reference)
		if err != nil {
			return "", fmt.Errorf("%w: reference %q is not numeric", ErrAllocationFailed, rec.Reference)
		}
		if n > maxRef {
			maxRef = n
		}
	}

	return fmt.Sprintf("%0*d", referenceWidth, maxRef+1), nil
}
