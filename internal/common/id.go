package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a job identifier
func NewJobID() string {
	return uuid.New().String()
}

// NewRecordID generates a result record identifier with the "rec_" prefix
func NewRecordID() string {
	return "rec_" + uuid.New().String()
}
