// Package notifid converts between client-visible notification ids and
// storage keys.
package notifid

import (
	"errors"
	"strconv"
	"strings"
)

// Prefix is prepended to every emitted id.
const Prefix = "notif_"

// ErrMalformed is returned for ids that do not carry a non-negative integer key.
var ErrMalformed = errors.New("invalid notification id format")

// Encode returns the canonical external form of key.
func Encode(key int64) string {
	return Prefix + strconv.FormatInt(key, 10)
}

// Decode accepts "notif_<n>" as well as a bare "<n>".
func Decode(id string) (int64, error) {
	raw := strings.TrimPrefix(id, Prefix)
	if raw == "" {
		return 0, ErrMalformed
	}
	// ParseUint rejects signs, so "-1" and "+1" are malformed too.
	key, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, ErrMalformed
	}
	return int64(key), nil
}
