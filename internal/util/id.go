package util

import "github.com/google/uuid"

func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ValidUUID reports whether value parses as a UUID in canonical form.
func ValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
