package enums

// MemberRole is a caller's role within the active store, taken from the
// access token.
type MemberRole string

const (
	MemberRoleOwner   MemberRole = "owner"
	MemberRoleAdmin   MemberRole = "admin"
	MemberRoleManager MemberRole = "manager"
	MemberRoleStaff   MemberRole = "staff"
	MemberRoleOps     MemberRole = "ops"
	MemberRoleAgent   MemberRole = "agent"
	MemberRoleViewer  MemberRole = "viewer"
)

var memberRoles = newLabelSet("member role",
	MemberRoleOwner, MemberRoleAdmin, MemberRoleManager, MemberRoleStaff,
	MemberRoleOps, MemberRoleAgent, MemberRoleViewer,
)

func (m MemberRole) String() string { return string(m) }

func (m MemberRole) IsValid() bool { return memberRoles.has(m) }

// CanManageInventory reports whether the role may restock or retune stock
// thresholds. Reads and reservations only need store membership.
func (m MemberRole) CanManageInventory() bool {
	switch m {
	case MemberRoleOwner, MemberRoleAdmin, MemberRoleManager, MemberRoleStaff:
		return true
	}
	return false
}

func ParseMemberRole(value string) (MemberRole, error) {
	return memberRoles.parse(value)
}
