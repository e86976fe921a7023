// CLAUDE:SUMMARY Prober contract: exists/not-exists per URL, resolved media URL for post-style services, transport errors kept distinct from misses.
// Package probe answers a single question per URL: does the resource exist?
//
// Direct-mode services are confirmed by fetching the probed URL itself;
// resolve-mode services serve an intermediate post page that must yield a
// media URL before the hit counts.
//
// A normal "not found" response is not an error. Errors are reserved for
// transport failures (timeout, DNS, refused connection, upstream 5xx), where
// there is no evidence either way.
package probe

import (
	"context"

	"github.com/hazyhaar/sourcier/catalog"
)

// Result is the outcome of a successful probe round-trip.
type Result struct {
	// Exists reports whether the resource is present.
	Exists bool
	// ResolvedURL is the final media URL for resolve-mode services.
	// Empty for direct-mode probes and for misses.
	ResolvedURL string
}

// Prober checks a candidate URL against its service.
type Prober interface {
	// Probe fetches url and reports existence. A non-nil error means the
	// answer is unknown (transport failure), never "does not exist".
	Probe(ctx context.Context, svc *catalog.Service, url string) (*Result, error)
}
