package models

import (
	"fmt"
	"time"
)

// Category separates the two identity banks kept per tenant.
type Category string

const (
	CategoryPerson Category = "person"
	CategoryAnimal Category = "animal"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryAnimal, CategoryPerson}

func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is known
func (c Category) IsValid() bool {
	switch c {
	case CategoryPerson, CategoryAnimal:
		return true
	default:
		return false
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// UnknownEntityID is the id carried by the unknown sentinel match.
const UnknownEntityID int64 = -1

// MovementEntry is the only movement type the pipeline records.
const MovementEntry = "entry"

// EventAutoRegistered tags registration events on the wire.
const EventAutoRegistered = "auto_registered"

// EntityRecord is the identity of a tracked person or animal.
type EntityRecord struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Embedding   []float32 `json:"-"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
}

// EntityRef points at one stored entity.
type EntityRef struct {
	TenantID int64    `json:"tenant_id"`
	Category Category `json:"entity_type"`
	ID       int64    `json:"entity_id"`
}

// IdentityMatch is the result of one bank lookup.
type IdentityMatch struct {
	Name        string  `json:"name"`
	EntityID    int64   `json:"entity_id"`
	Similarity  float32 `json:"similarity"`
	IsKnown     bool    `json:"is_known"`
	Description string  `json:"description,omitempty"`
}

// UnknownMatch builds the sentinel returned for unidentified detections.
func UnknownMatch(label string, similarity float32) IdentityMatch {
	return IdentityMatch{
		Name:       label,
		EntityID:   UnknownEntityID,
		Similarity: similarity,
		IsKnown:    false,
	}
}

// Analysis holds the optional attributes produced by the description service.
type Analysis struct {
	Description string   `json:"description"`
	Breed       string   `json:"breed"`
	Weight      *float64 `json:"weight,omitempty"`
}

// NewEntity is what the registration orchestrator hands to the store.
type NewEntity struct {
	TenantID    int64
	Category    Category
	Name        string
	Embedding   []float32
	Description string
	Breed       string
	Weight      *float64
	PhotoPath   string
	Role        string
}

// Movement is an entry/exit log line.
type Movement struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	Category   Category  `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	EventType  string    `json:"event_type"`
	Source     string    `json:"source"`
	DetectedAt time.Time `json:"detected_at"`
}

// RegistrationEvent announces an auto-registered entity. It is never persisted.
type RegistrationEvent struct {
	EventID      string    `json:"event_id"`
	Event        string    `json:"event"`
	Category     Category  `json:"entity_type"`
	EntityID     int64     `json:"entity_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PhotoPath    string    `json:"photo_path"`
	CameraID     string    `json:"camera_id"`
	CameraName   string    `json:"camera_name"`
	TenantID     int64     `json:"tenant_id"`
	RegisteredAt time.Time `json:"registered_at"`
}
