package util

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lower-case ULID, optionally prefixed. ULIDs sort by creation time.
func NewID(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
