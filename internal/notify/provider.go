package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrTokenInvalid marks a token the provider reports as unregistered or
// malformed. The notifier prunes such tokens silently.
var ErrTokenInvalid = errors.New("device token invalid")

// PushProvider delivers one notification to one device token.
type PushProvider interface {
	Send(ctx context.Context, token, title, body string) error
}

// FCMProvider implements PushProvider on Firebase Cloud Messaging.
type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider builds the FCM client from a service-account file. An
// empty credentialsFile falls back to application default credentials.
func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm client: %w", err)
	}
	return &FCMProvider{client: client}, nil
}

// Send pushes one notification. Unregistered tokens come back as
// ErrTokenInvalid so callers can garbage-collect them.
func (p *FCMProvider) Send(ctx context.Context, token, title, body string) error {
	_, err := p.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	})
	if err == nil {
		return nil
	}
	if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return err
}
