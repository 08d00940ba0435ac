package remote

import (
	"github.com/google/uuid"

	"github.com/roach88/entitysync/internal/model"
)

// IDFunc produces server-side identifiers.
type IDFunc func() string

// UUIDv7 generates time-sortable identifiers, the way the configuration
// service assigns ids to sinks and sources.
func UUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// AssignSinkUID fills an empty Sink.UID from next.
func AssignSinkUID(next IDFunc) func(model.Sink) model.Sink {
	return func(s model.Sink) model.Sink {
		if s.UID == "" {
			s.UID = next()
		}
		return s
	}
}

// AssignSourceID fills an empty Source.ID from next.
func AssignSourceID(next IDFunc) func(model.Source) model.Source {
	return func(s model.Source) model.Source {
		if s.ID == "" {
			s.ID = next()
		}
		return s
	}
}
