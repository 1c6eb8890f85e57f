package models

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// swagger:enum EntityType
type EntityType string

const (
	EntityCommunity EntityType = "community"
	EntityProject   EntityType = "project"
	EntityParish    EntityType = "parish"
)

// EntityTypes lists all valid entity types.
var EntityTypes = []EntityType{EntityCommunity, EntityProject, EntityParish}

// Valid reports if the entity type is known.
func (e EntityType) Valid() bool {
	return slices.Contains(EntityTypes, e)
}

// EntityRef identifies the entity that money is allocated to and consumed from.
type EntityRef struct {
	Type EntityType `json:"entityType" example:"community"`                          // Type of the entity
	ID   uuid.UUID  `json:"entityId" example:"3a3b5a1a-2b7c-4d4e-8f60-1c2d3e4f5a6b"` // ID of the entity
}

func Community(id uuid.UUID) EntityRef {
	return EntityRef{Type: EntityCommunity, ID: id}
}

func Project(id uuid.UUID) EntityRef {
	return EntityRef{Type: EntityProject, ID: id}
}

func Parish(id uuid.UUID) EntityRef {
	return EntityRef{Type: EntityParish, ID: id}
}

func (e EntityRef) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.ID)
}

// Validate checks that the reference is complete.
func (e EntityRef) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: '%s' is not a valid entity type", ErrValidation, e.Type)
	}

	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: the entity id must be set", ErrValidation)
	}

	return nil
}

// swagger:enum TransactionType
type TransactionType string

const (
	TransactionTypeCommunity    TransactionType = "community"
	TransactionTypeOtherProject TransactionType = "otherProject"
	TransactionTypeFamily       TransactionType = "family"
)

// EntityType returns the type of entity a transaction of this type is booked against.
func (t TransactionType) EntityType() (EntityType, error) {
	switch t {
	case TransactionTypeCommunity:
		return EntityCommunity, nil
	case TransactionTypeOtherProject:
		return EntityProject, nil
	case TransactionTypeFamily:
		return EntityParish, nil
	}

	return "", fmt.Errorf("%w: '%s' is not a valid transaction type", ErrValidation, t)
}

// EntityIDs are the id fields of a transaction request. Which one is
// used depends on the transaction type.
type EntityIDs struct {
	CommunityID *uuid.UUID
	FundID      *uuid.UUID
	ParishID    *uuid.UUID
}

// Resolve returns the EntityRef for a transaction type.
//
// Exactly the id field belonging to the type must be set.
func (ids EntityIDs) Resolve(t TransactionType) (EntityRef, error) {
	entityType, err := t.EntityType()
	if err != nil {
		return EntityRef{}, err
	}

	fields := map[EntityType]*uuid.UUID{
		EntityCommunity: ids.CommunityID,
		EntityProject:   ids.FundID,
		EntityParish:    ids.ParishID,
	}

	for other, id := range fields {
		if other != entityType && id != nil && *id != uuid.Nil {
			return EntityRef{}, fmt.Errorf("%w: a %s transaction must not reference a %s", ErrValidation, t, other)
		}
	}

	id := fields[entityType]
	if id == nil || *id == uuid.Nil {
		return EntityRef{}, fmt.Errorf("%w: a %s transaction must reference a %s", ErrValidation, t, entityType)
	}

	return EntityRef{Type: entityType, ID: *id}, nil
}
