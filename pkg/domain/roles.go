package domain

import dErrors "custodia/pkg/domain-errors"

// Role is a supply-chain tier recognized by the role registry.
// Invariant: the value must be one of the constants below.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleWholesaler   Role = "wholesaler"
	RolePharmacy     Role = "pharmacy"
	RoleConsumer     Role = "consumer"
	RoleAdmin        Role = "admin"
)

var knownRoles = map[Role]bool{
	RoleManufacturer: true,
	RoleDistributor:  true,
	RoleWholesaler:   true,
	RolePharmacy:     true,
	RoleConsumer:     true,
	RoleAdmin:        true,
}

// ParseRole validates a role name against the allowlist.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !knownRoles[r] {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown role: "+s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// ladder is the permitted custody chain. A pharmacy's onward movement of
// inventory is a sale, not a transfer, so pharmacy has no successor here.
var ladder = map[Role]Role{
	RoleManufacturer: RoleDistributor,
	RoleDistributor:  RoleWholesaler,
	RoleWholesaler:   RolePharmacy,
}

// NextInLadder returns the only role this holder may transfer custody to,
// and false when the holder may not transfer at all.
func (r Role) NextInLadder() (Role, bool) {
	next, ok := ladder[r]
	return next, ok
}

// DownstreamRoles are the roles allowed to receive a custody transfer.
func DownstreamRoles() []Role {
	return []Role{RoleDistributor, RoleWholesaler, RolePharmacy}
}
