package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"

	"essay-corrector-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// StorageClient returns an object store for the configured exam image bucket.
func (c *Client) StorageClient() *StorageClient {
	return newStorageClient(c.Supabase.Storage, c.Config.SupabaseURL, c.Config.SupabaseStorageBucket)
}
