package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const resultKeyPrefix = "files:"

// tagSeparator cannot occur in a tag, so distinct tag lists never hash alike.
const tagSeparator = "\x00"

// ResultKey derives the result cache key of a tag set, in the order given.
func ResultKey(tags []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tags, tagSeparator)))
	return resultKeyPrefix + hex.EncodeToString(sum[:])
}
