package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// FirebaseAuthClient verifies Firebase ID tokens issued to marketplace users.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

// GenerateToken mints a custom token for uid. Clients exchange it for an ID
// token with the Firebase SDK; it is used by the development token endpoint.
func (f *FirebaseAuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	return f.client.CustomToken(ctx, uid)
}
