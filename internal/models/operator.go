package models

// Operator is a person allowed to change the station configuration over HTTP.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
