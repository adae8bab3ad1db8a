package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// LogToken derives a stable log identifier from the channel a message
// arrived on, its timestamp and its middleware message id. The same
// inputs always yield the same token, which is what makes re-parsed
// legacy logs keep stable identifiers across runs.
func LogToken(channel string, timestamp int64, msgID int) string {
	sum := sha1.Sum(fmt.Appendf(nil, "%s%d%d", channel, timestamp, msgID))
	return hex.EncodeToString(sum[:])
}
