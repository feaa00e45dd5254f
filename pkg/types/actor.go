package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// Actor is the resolved caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// SystemActor is used for transitions the engine performs on its own.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

func (a Actor) IsSystem() bool {
	return a.Role == enums.ActorRoleSystem
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// IDRef returns the user id for audit columns, or nil for the system actor.
func (a Actor) IDRef() *uuid.UUID {
	if a.IsSystem() || a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
