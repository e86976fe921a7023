// CLAUDE:SUMMARY Hit delivery: Notifier contract, Discord webhook and HMAC-signed generic webhook sinks, fan-out with logged-only failures.
// Package notify delivers confirmed hits to external destinations.
//
// Delivery is fire-and-forget from the engine's point of view: a failing
// notifier is logged and never feeds back into the probing loop — the hit
// was confirmed independently of its delivery.
package notify

import (
	"context"
	"errors"
	"time"
)

// Hit is a confirmed discovery.
type Hit struct {
	// Domain is the service the hit was found on.
	Domain string `json:"domain"`
	// Code is the candidate code that matched.
	Code string `json:"code"`
	// URL is the probed URL.
	URL string `json:"url"`
	// ResolvedURL is the final media URL. Equals URL for direct-mode
	// services; the resolved target for resolve-mode services.
	ResolvedURL string `json:"resolved_url"`
	// FoundAt is the confirmation time.
	FoundAt time.Time `json:"found_at"`
}

// Notifier delivers one hit to one destination.
type Notifier interface {
	Notify(ctx context.Context, hit Hit) error
}

// Multi fans a hit out to several notifiers. Every notifier is attempted;
// failures are joined into the returned error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, hit Hit) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, hit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
