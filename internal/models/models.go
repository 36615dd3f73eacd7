package models

import "time"

// Role of an authenticated user.
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Identity is the normalized view of an authenticated user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// SMTP settings row, table smtp_settings
type SMTPSettings struct {
	ID         string `json:"id,omitempty"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Encryption string `json:"encryption"` // ssl, tls or none
	Username   string `json:"username"`
	Password   string `json:"password"`
	FromName   string `json:"from_name"`
	FromEmail  string `json:"from_email"`
	IsEnabled  bool   `json:"is_enabled"`
}

// Notification structs
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Site settings as written by the admin panel
type SiteSettings struct {
	SEO SEOSettings `json:"seo"`
}

type SEOSettings struct {
	LogoURL string `json:"logo_url,omitempty"`
}

// Auth structs
type AuthRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type SessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	IsAdmin       bool      `json:"isAdmin"`
	Loading       bool      `json:"loading"`
	User          *Identity `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Email structs
type EmailRequest struct {
	To       string `json:"to" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	HTMLBody string `json:"htmlBody" validate:"required"`
}

type EmailResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
