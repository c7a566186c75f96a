package model

import "time"

// Domain identifies one of the four fixed semantic axes along which users
// and entities are embedded.
type Domain string

const (
	DomainCultural   Domain = "cultural"
	DomainBehavioral Domain = "behavioral"
	DomainEconomic   Domain = "economic"
	DomainSpatial    Domain = "spatial"
)

// Domains lists the four axes in storage order.
var Domains = [4]Domain{DomainCultural, DomainBehavioral, DomainEconomic, DomainSpatial}

// UserProfile is a user's current multi-domain embedding state. One row
// per user; Generation increases by exactly one per update. The composite
// vector is always a pure function of the four domain vectors and is
// rewritten atomically with them.
type UserProfile struct {
	UserID     string
	Vectors    [4][]float64
	Composite  []float64
	Dimensions int
	Generation int64

	HalfLifeDays    float64
	LearningRate    float64
	Confidence      float64
	LastInteraction time.Time
	UpdatedAt       time.Time
}

// EntityProfile is the embedding of an interactable entity, supplied by
// an external generator. Read-only from the pipeline's perspective.
type EntityProfile struct {
	EntityID   string
	Kind       string
	Vectors    [4][]float64
	Dimensions int
	UpdatedAt  time.Time
}
