package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebasesdk "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Credentials selects how the Google clients authenticate. JSON takes
// precedence over Path; with neither, application default credentials apply.
type Credentials struct {
	ProjectID string
	JSON      string
	Path      string
}

func (c Credentials) ClientOptions() []option.ClientOption {
	switch {
	case c.JSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.JSON))}
	case c.Path != "":
		return []option.ClientOption{option.WithCredentialsFile(c.Path)}
	}
	return nil
}

// App bundles the Firebase clients the service needs.
type App struct {
	app *firebasesdk.App
}

func NewApp(ctx context.Context, creds Credentials) (*App, error) {
	app, err := firebasesdk.NewApp(ctx, &firebasesdk.Config{ProjectID: creds.ProjectID}, creds.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}
	return &App{app: app}, nil
}

func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firestore: %v", err)
	}
	return client, nil
}

func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := a.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase auth: %v", err)
	}
	return client, nil
}
