package auth

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/calybase/calybase-backend/config"
)

var defaultCredentialScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Firebase bundles the Admin SDK clients shared by the backend.
type Firebase struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
}

// InitializeFirebase initializes the Firebase Admin SDK. A service account
// file is used when FIREBASE_CREDENTIALS_PATH is set, otherwise Application
// Default Credentials are looked up.
func InitializeFirebase(ctx context.Context, cfg *config.FirebaseConfig) (*Firebase, error) {
	opt, err := credentialsOption(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fbCfg := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}
	app, err := firebase.NewApp(ctx, fbCfg, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}

	return &Firebase{App: app, Auth: authClient, Firestore: fsClient}, nil
}

func (f *Firebase) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}

func credentialsOption(ctx context.Context, cfg *config.FirebaseConfig) (option.ClientOption, error) {
	if cfg.CredentialsPath != "" {
		return option.WithCredentialsFile(cfg.CredentialsPath), nil
	}

	creds, err := google.FindDefaultCredentials(ctx, defaultCredentialScopes...)
	if err != nil {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is not set and no default credentials were found: %w", err)
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = creds.ProjectID
	}
	return option.WithCredentials(creds), nil
}
