package models

// Actor is the acting user as supplied by the identity provider.
type Actor struct {
	ID   string `json:"id"   validate:"required"`
	Name string `json:"name"`
	Role string `json:"role"`
}
