package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tripchat-service/internal/observability"
	"tripchat-service/internal/repositories"
)

// DeliveryReport summarizes one NotifyUser call across the user's devices.
type DeliveryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
}

// Notifier resolves a user to their registered device tokens and delivers
// a push notification per token. Tokens the provider rejects are deleted;
// liveness is inferred only from delivery failures.
type Notifier struct {
	tokens   repositories.DeviceTokenRepository
	provider PushProvider
}

// NewNotifier constructs a Notifier.
func NewNotifier(tokens repositories.DeviceTokenRepository, provider PushProvider) *Notifier {
	return &Notifier{tokens: tokens, provider: provider}
}

// RegisterToken stores a (user, token) pair. Idempotent.
func (n *Notifier) RegisterToken(ctx context.Context, userID int, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	return n.tokens.SaveToken(ctx, userID, token)
}

// UnregisterToken removes one token wherever it is registered.
func (n *Notifier) UnregisterToken(ctx context.Context, token string) error {
	return n.tokens.DeleteToken(ctx, token)
}

// UnregisterAllForUser removes every token a user holds (logout-all).
func (n *Notifier) UnregisterAllForUser(ctx context.Context, userID int) error {
	return n.tokens.DeleteAllForUser(ctx, userID)
}

// NotifyUser attempts delivery to every device the user has registered.
// Each token is tried independently: a rejected token is pruned from
// storage and never aborts the remaining deliveries. Multi-device
// broadcast is inherently redundant, so there is no per-token retry.
func (n *Notifier) NotifyUser(ctx context.Context, userID int, title, body string) (DeliveryReport, error) {
	tokens, err := n.tokens.TokensByUser(ctx, userID)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("load tokens for user %d: %w", userID, err)
	}

	report := DeliveryReport{Attempted: len(tokens)}
	for _, token := range tokens {
		if err := n.provider.Send(ctx, token, title, body); err != nil {
			log.Printf("push delivery failed user=%d: %v", userID, err)
			if delErr := n.tokens.DeleteToken(ctx, token); delErr != nil {
				log.Printf("prune token failed user=%d: %v", userID, delErr)
			} else {
				report.Pruned++
				observability.IncTokenPruned()
			}
			continue
		}
		report.Delivered++
		observability.IncNotificationSent()
	}
	return report, nil
}
