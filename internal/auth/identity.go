package auth

import (
	"strings"

	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/supabase"
)

// IdentityFromUser normalizes a remote user. Name falls back to the local
// part of the email, then "User"; role falls back to "user".
func IdentityFromUser(u supabase.User) models.Identity {
	name := metaString(u.UserMetadata, "full_name")
	if name == "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	if name == "" {
		name = "User"
	}

	role := models.Role(metaString(u.UserMetadata, "role"))
	if role == "" {
		role = models.RoleUser
	}

	return models.Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  name,
		Role:  role,
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}
