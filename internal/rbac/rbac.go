// Package rbac defines the document role hierarchy. Roles form a strict
// total order: every capability of a lower role is held by every higher
// one, so authorization reduces to a rank comparison.
package rbac

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Rank returns the position of a role in the hierarchy. Unknown roles
// rank below viewer so a corrupted grant never widens access.
func Rank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Allows reports whether a held role satisfies a required role.
func Allows(held, required Role) bool {
	return Rank(held) >= Rank(required)
}

func Valid(role Role) bool {
	return Rank(role) > 0
}

// Normalize maps a stored role string onto the hierarchy. Anything
// unrecognized becomes the empty role, which ranks below viewer, so a
// corrupted grant row grants nothing.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return ""
	}
}
