package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Envelope correlates a stage payload with the id of the request that started
// the pipeline. The id is generated once at the front-end and copied verbatim
// into every envelope derived from it.
type Envelope[T any] struct {
	ID   uuid.UUID `json:"id"`
	Data T         `json:"data"`
}

// NewEnvelope starts a pipeline run with a fresh time-ordered id.
func NewEnvelope[T any](data T) (Envelope[T], error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Envelope[T]{}, fmt.Errorf("generate request id: %w", err)
	}
	return Envelope[T]{ID: id, Data: data}, nil
}

// Derive builds the next stage's envelope for the same request.
func Derive[In, Out any](from Envelope[In], data Out) Envelope[Out] {
	return Envelope[Out]{ID: from.ID, Data: data}
}

// Route is a fixed (broker, destination) pair.
type Route struct {
	Broker      string
	Destination string
}

func (r Route) String() string {
	return r.Broker + "/" + r.Destination
}
