package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewService creates a read-only Drive service using the provided TokenSource.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*drive.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	return drive.NewService(ctx, opts...)
}

// TokenSourceFromFiles builds a token source from credential files.
//
// With a tokenFile, credentialsFile is an OAuth client config and tokenFile
// holds a saved user token that is refreshed as needed. Without one,
// credentialsFile is a service account key.
func TokenSourceFromFiles(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	if tokenFile == "" {
		creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		return creds.TokenSource, nil
	}

	cfg, err := google.ConfigFromJSON(data, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client config: %w", err)
	}

	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}
