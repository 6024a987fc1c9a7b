// Package ids generates the time-sortable identifiers used for messages and
// conversations.
package ids

import "github.com/google/uuid"

// New returns a UUIDv7 string. Values generated by one process sort in
// creation order both lexically and by time.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}
