package domain

const RoleAdmin = "ADMIN"

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	UserID int64
	Roles  []string
}

func (i Identity) IsAdmin() bool {
	for _, role := range i.Roles {
		if role == RoleAdmin {
			return true
		}
	}

	return false
}

// CanView reports whether the caller may see an order owned by userID.
func (i Identity) CanView(userID int64) bool {
	return i.IsAdmin() || i.UserID == userID
}
