package domain

// Principal is whoever a cart is bound to: an authenticated user, or the
// anonymous session token when UserID is empty.
type Principal struct {
	UserID       string
	Email        string
	SessionToken string
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}
