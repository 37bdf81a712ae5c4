// Package gcloud builds client options shared by the Google speech backends.
package gcloud

import (
	"github.com/loqalabs/signbridge/internal/config"
	"google.golang.org/api/option"
)

// ClientOptions prefers an explicit credentials file, then an API key. With
// neither set the clients fall back to application default credentials.
func ClientOptions(cfg config.GoogleConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return opts
}
