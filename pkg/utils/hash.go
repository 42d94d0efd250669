package utils

import (
	"crypto/md5"
	"fmt"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// SuggestionID derives the stable identifier for a source/target pair.
// It must not depend on ranking position: accept/reject state recorded
// against an id has to survive regeneration with a changed corpus.
func SuggestionID(sourceID, targetID string) string {
	return HashString(sourceID + ":" + targetID)
}
