package core

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ContentHash fingerprints the fields that identify a real-world transaction.
// Two rows with the same account, description, timestamp and amount collide.
func ContentHash(accountID int64, description string, ts time.Time, amount int64) string {
	joined := strings.Join([]string{
		strconv.FormatInt(accountID, 10),
		description,
		strconv.FormatInt(ts.UTC().Unix(), 10),
		strconv.FormatInt(amount, 10),
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", sum[:])
}
