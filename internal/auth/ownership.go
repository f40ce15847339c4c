package auth

// AuthorizeOwner permits a mutation only when the resource belongs to who.
// Callers must have confirmed the resource exists; a missing resource is a
// not-found outcome, never a denial.
func AuthorizeOwner(ownerID int64, who Identity) error {
	if who.ID <= 0 || ownerID != who.ID {
		return ErrForbidden
	}
	return nil
}
