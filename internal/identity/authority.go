package identity

// Authority answers the break-glass administrator check. The admin email is
// injected once at construction rather than read from process-wide
// configuration inside the entity, keeping the check testable.
type Authority struct {
	adminEmail string
}

// NewAuthority constructs an Authority for the configured admin email.
func NewAuthority(adminEmail string) Authority {
	return Authority{adminEmail: adminEmail}
}

// IsSystemAdministrator reports whether the email belongs to the designated
// system administrator. The decision is independent of the user's role and
// permission rows: this identity must keep working even when the permission
// graph is empty or misconfigured.
func (a Authority) IsSystemAdministrator(email string) bool {
	return a.adminEmail != "" && email == a.adminEmail
}
