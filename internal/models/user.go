package models

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	CompanyName  string `json:"company_name"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
}
