package domain

// CanModify decides whether the actor may read, mutate, or delete the target
// record. Self-service access is always allowed; anything else requires the
// Admin role.
func CanModify(actor, target User) bool {
	if actor.ID == target.ID {
		return true
	}
	return actor.IsAdmin()
}

// RequiresPasswordReentry reports whether the actor must re-verify the
// current password before an edit is applied. Admins are exempt, as are
// accounts provisioned through Facebook, which have no local password.
func RequiresPasswordReentry(actor User) bool {
	if actor.IsAdmin() {
		return false
	}
	return actor.Source != SourceFacebook
}
