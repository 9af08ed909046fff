package domain

type UserID string

// Identity is who a session speaks for. With token auth it comes from the
// verified claims, otherwise from the first join.
type Identity struct {
	UserID   UserID
	Username string
}

func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Username == ""
}
