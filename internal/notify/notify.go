// Package notify delivers generated documents to their recipients by email.
package notify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/foxzi/docforge/internal/render"
)

// Notification is one document addressed to one recipient
type Notification struct {
	To            string
	RecipientName string
	Document      *render.Document
	TemplateName  string
	SenderName    string
}

// Receipt confirms an accepted message
type Receipt struct {
	MessageID string
}

// Dispatcher sends notifications
type Dispatcher interface {
	Send(ctx context.Context, n Notification) (*Receipt, error)
}

// DispatchError represents a delivery failure with type information
type DispatchError struct {
	Temporary bool
	Message   string
}

func (e *DispatchError) Error() string {
	return e.Message
}

// IsTemporary reports whether a later retry could succeed
func IsTemporary(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true // Assume temporary if unknown
}

// ErrorType classifies an error for metrics labels
func ErrorType(err error) string {
	if IsTemporary(err) {
		return "temporary"
	}
	return "permanent"
}

func validate(n Notification) error {
	if n.To == "" {
		return &DispatchError{Message: "recipient email is required"}
	}
	if n.Document == nil || len(n.Document.Data) == 0 {
		return &DispatchError{Message: "document is required"}
	}
	return nil
}

// Disabled rejects every notification
type Disabled struct{}

// Send always fails
func (Disabled) Send(ctx context.Context, n Notification) (*Receipt, error) {
	return nil, &DispatchError{Message: "email delivery is disabled"}
}

// RateLimited throttles another dispatcher
type RateLimited struct {
	next    Dispatcher
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond messages with the given burst.
// A non-positive rate disables throttling.
func NewRateLimited(next Dispatcher, perSecond float64, burst int) Dispatcher {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token then delegates
func (r *RateLimited) Send(ctx context.Context, n Notification) (*Receipt, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &DispatchError{Temporary: true, Message: fmt.Sprintf("rate limit wait: %v", err)}
	}
	return r.next.Send(ctx, n)
}
