package enums

import "slices"

// ActorRole is the caller class carried in access tokens.
type ActorRole string

const (
	ActorRoleUser    ActorRole = "user"
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleService ActorRole = "service"
)

var validActorRoles = []ActorRole{ActorRoleUser, ActorRoleAdmin, ActorRoleService}

func (r ActorRole) IsValid() bool { return slices.Contains(validActorRoles, r) }

func ParseActorRole(value string) (ActorRole, error) {
	return parse(validActorRoles, "actor role", value)
}
