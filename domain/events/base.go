package events

import (
	"time"

	"linkgraph/domain/core/entities"
)

// Source is the event source name used when events leave the process.
const Source = "linkgraph.links"

// Event type names
const (
	TypeLinkCreated       = "link.created"
	TypeLinkUpdated       = "link.updated"
	TypeLinkDeleted       = "link.deleted"
	TypeEntityLinksPurged = "entity.links_purged"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
	GetTenantID() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	TenantID    string    `json:"tenant_id"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }
func (e BaseEvent) GetTenantID() string     { return e.TenantID }

func newBase(aggregateID, eventType, tenantID string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		TenantID:    tenantID,
		Timestamp:   timestamp,
		Version:     1,
	}
}

// LinkCreated is raised when a link is persisted
type LinkCreated struct {
	BaseEvent
	From      entities.EntityRef `json:"from"`
	To        entities.EntityRef `json:"to"`
	Kind      entities.LinkKind  `json:"kind"`
	CreatedBy string             `json:"created_by,omitempty"`
}

// NewLinkCreated creates a LinkCreated event
func NewLinkCreated(link *entities.EntityLink, timestamp time.Time) LinkCreated {
	return LinkCreated{
		BaseEvent: newBase(link.ID, TypeLinkCreated, link.TenantID, timestamp),
		From:      link.From(),
		To:        link.To(),
		Kind:      link.Kind,
		CreatedBy: link.CreatedBy,
	}
}

// LinkUpdated is raised when mutable link fields change
type LinkUpdated struct {
	BaseEvent
	PreviousKind entities.LinkKind `json:"previous_kind"`
	Kind         entities.LinkKind `json:"kind"`
	Active       bool              `json:"active"`
}

// NewLinkUpdated creates a LinkUpdated event
func NewLinkUpdated(before, after *entities.EntityLink, timestamp time.Time) LinkUpdated {
	return LinkUpdated{
		BaseEvent:    newBase(after.ID, TypeLinkUpdated, after.TenantID, timestamp),
		PreviousKind: before.Kind,
		Kind:         after.Kind,
		Active:       after.Active,
	}
}

// LinkDeleted is raised on soft or hard deletion
type LinkDeleted struct {
	BaseEvent
	From entities.EntityRef `json:"from"`
	To   entities.EntityRef `json:"to"`
	Kind entities.LinkKind  `json:"kind"`
	Soft bool               `json:"soft"`
}

// NewLinkDeleted creates a LinkDeleted event
func NewLinkDeleted(link *entities.EntityLink, soft bool, timestamp time.Time) LinkDeleted {
	return LinkDeleted{
		BaseEvent: newBase(link.ID, TypeLinkDeleted, link.TenantID, timestamp),
		From:      link.From(),
		To:        link.To(),
		Kind:      link.Kind,
		Soft:      soft,
	}
}

// EntityLinksPurged is raised after every link touching an entity was removed
type EntityLinksPurged struct {
	BaseEvent
	Entity entities.EntityRef `json:"entity"`
	Count  int                `json:"count"`
	Soft   bool               `json:"soft"`
}

// NewEntityLinksPurged creates an EntityLinksPurged event
func NewEntityLinksPurged(ref entities.EntityRef, count int, soft bool, timestamp time.Time) EntityLinksPurged {
	return EntityLinksPurged{
		BaseEvent: newBase(ref.Key(), TypeEntityLinksPurged, ref.TenantID, timestamp),
		Entity:    ref,
		Count:     count,
		Soft:      soft,
	}
}
