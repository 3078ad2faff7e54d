package handler

import (
	"time"

	"github.com/freelancer-expense-classifier/internal/domain/user"
)

// RegisterRequest represents a request to create an account
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest represents a partial profile edit
type UpdateProfileRequest struct {
	FullName     *string `json:"full_name"`
	BusinessType *string `json:"business_type"`
	BusinessName *string `json:"business_name"`
}

// UserResponse represents an account in API responses
type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name,omitempty"`
	BusinessType string `json:"business_type,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// AuthResponse carries the session token plus the account it belongs to
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UpdateTransactionRequest represents a manual transaction edit. Omitted
// fields are left untouched; any present field marks the transaction as
// manually overridden.
type UpdateTransactionRequest struct {
	Date              *string `json:"date"`
	Description       *string `json:"description"`
	Amount            *string `json:"amount"`
	Category          *string `json:"category"`
	IsBusinessExpense *bool   `json:"is_business_expense"`
}

// ListTransactionsParams represents filters for the transaction listing
type ListTransactionsParams struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	PerPage    int    `form:"per_page,default=50" binding:"min=1,max=500"`
	IsBusiness *bool  `form:"is_business"`
	Category   string `form:"category"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// DateRangeParams represents the optional date bounds on exports
type DateRangeParams struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// TaxReportParams represents the tax report query
type TaxReportParams struct {
	TaxYear int `form:"tax_year" binding:"required,min=2000,max=2100"`
}

// mapUserToResponse maps an account to its API representation
func mapUserToResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Email:        u.Email,
		FullName:     u.FullName,
		BusinessType: u.BusinessType,
		BusinessName: u.BusinessName,
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
}

// parseDateParam parses an optional YYYY-MM-DD query value
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
