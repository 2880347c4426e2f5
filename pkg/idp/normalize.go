package idp

import "fmt"

// RawUser is one element of the admin API's users listing
// (GET /admin/realms/{realm}/users), decoded straight off the wire.
type RawUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
	AvatarURL string `json:"avatarUrl"`
}

// SyncUser is the canonical record the Reconciliation Engine consumes.
type SyncUser struct {
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// Normalize converts raw admin API records into SyncUser records, dropping
// any record without an email and recording why in errs.
func Normalize(raw []RawUser) (users []SyncUser, errs []string) {
	users = make([]SyncUser, 0, len(raw))
	for _, r := range raw {
		if r.Email == "" {
			errs = append(errs, fmt.Sprintf("dropping raw record %s: no email address", r.ID))
			continue
		}
		users = append(users, SyncUser{
			ProviderID: r.ID,
			Email:      r.Email,
			Name:       displayName(r),
			AvatarURL:  r.AvatarURL,
		})
	}
	return users, errs
}

// displayName composes a human name from whatever fields the IdP populated,
// per spec.md §4.B's fallback chain.
func displayName(r RawUser) string {
	switch {
	case r.FirstName != "" && r.LastName != "":
		return r.FirstName + " " + r.LastName
	case r.FirstName != "":
		return r.FirstName
	case r.LastName != "":
		return r.LastName
	case r.Username != "":
		return r.Username
	case r.Email != "":
		return r.Email
	default:
		return "Unknown User"
	}
}
