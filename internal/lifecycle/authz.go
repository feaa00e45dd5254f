package lifecycle

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

func requireActor(actor types.Actor) error {
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	if !actor.IsSystem() && actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id missing")
	}
	return nil
}

func requireRole(actor types.Actor, roles ...enums.ActorRole) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
		WithDetails(map[string]any{"role": actor.Role})
}

func privileged(actor types.Actor) bool {
	return actor.IsAdmin() || actor.IsSystem()
}

// authorizeOrderRead lets buyers see their own orders and farmers see orders
// carrying at least one of their items. order must have Items loaded.
func authorizeOrderRead(actor types.Actor, order *models.Order) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	switch {
	case privileged(actor):
		return nil
	case actor.Role == enums.ActorRoleBuyer && order.BuyerID == actor.UserID:
		return nil
	case actor.Role == enums.ActorRoleFarmer:
		for _, item := range order.Items {
			if item.FarmerID == actor.UserID {
				return nil
			}
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to actor")
}

func authorizeBuyerAction(actor types.Actor, order *models.Order) error {
	if err := requireRole(actor, enums.ActorRoleBuyer, enums.ActorRoleAdmin); err != nil {
		return err
	}
	if actor.IsAdmin() || order.BuyerID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
}

func authorizeFarmerResource(actor types.Actor, farmerID uuid.UUID, what string) error {
	if err := requireRole(actor, enums.ActorRoleFarmer, enums.ActorRoleAdmin); err != nil {
		return err
	}
	if actor.IsAdmin() || farmerID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, what+" does not belong to farmer")
}
