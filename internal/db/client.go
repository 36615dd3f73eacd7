package db

import (
	"github.com/supabase-community/postgrest-go"
)

// Client hands out PostgREST clients for the Supabase project.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
}

func NewClient(baseURL, anonKey, serviceKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		anonKey:    anonKey,
		serviceKey: serviceKey,
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.anonKey != ""
}

// GetUserClient returns a PostgREST client acting as the caller, so row
// level security applies. Without a token it acts as anon.
func (c *Client) GetUserClient(token string) *postgrest.Client {
	client := postgrest.NewClient(c.baseURL+"/rest/v1", "", map[string]string{
		"apikey": c.anonKey,
	})

	if token != "" {
		client.SetAuthToken(token)
	} else {
		client.SetAuthToken(c.anonKey)
	}
	return client
}

// GetSystemClient returns a PostgREST client for server-initiated work.
// It uses the service role key when one is configured.
func (c *Client) GetSystemClient() *postgrest.Client {
	key := c.serviceKey
	if key == "" {
		key = c.anonKey
	}

	client := postgrest.NewClient(c.baseURL+"/rest/v1", "", map[string]string{
		"apikey": key,
	})
	client.SetAuthToken(key)
	return client
}
