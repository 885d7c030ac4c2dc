package models

import "github.com/google/uuid"

// ensureID assigns a random id when the caller did not provide one, so rows
// get ids without relying on database-side defaults.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
