// CLAUDE:SUMMARY Static service catalog: code shape (length, alphabet), URL template, and existence-check mode per hosting service.
// Package catalog describes the third-party services the engine probes.
//
// Each Service is an immutable descriptor created from configuration at
// startup: where the service lives (URL template), what its codes look like
// (length plus alphabet kind), and how existence of a code is determined
// (direct fetch, or resolve an intermediate post page to a media URL).
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoServices is returned when a catalog is built with no entries.
// An empty catalog is the one unrecoverable configuration error: there is
// nothing to probe, so startup must fail.
var ErrNoServices = errors.New("catalog: no services configured")

// AlphabetKind names a code alphabet. Emoji symbols may span several runes
// (ZWJ sequences), so alphabets are sets of strings, not bytes.
type AlphabetKind string

const (
	AlphabetAlnum      AlphabetKind = "alnum"       // [a-zA-Z0-9]
	AlphabetLowerAlnum AlphabetKind = "loweralnum"  // [a-z0-9]
	AlphabetDigits     AlphabetKind = "digits"      // [0-9]
	AlphabetHex        AlphabetKind = "hex"         // [a-f0-9]
	AlphabetEmoji      AlphabetKind = "emoji"       // fixed emoji set, atomic symbols
)

// CheckMode selects how a probed URL is confirmed to exist.
type CheckMode string

const (
	// CheckDirect treats a successful fetch of the probed URL itself as a hit.
	CheckDirect CheckMode = "direct"
	// CheckResolve fetches the probed URL as an intermediate post page and
	// confirms a hit only when a media URL can be resolved from it.
	CheckResolve CheckMode = "resolve"
)

// Service is an immutable descriptor of one supported hosting service.
type Service struct {
	// Domain identifies the service. Used as the key in all persisted state.
	Domain string `yaml:"domain"`

	// Template is the probe URL pattern. {domain} and {code} are substituted.
	// Defaults to "https://i.{domain}/{code}" (the common short-host shape).
	Template string `yaml:"template"`

	// Length is the fixed code length in symbols.
	Length int `yaml:"length"`

	// Alphabet is the code alphabet kind.
	Alphabet AlphabetKind `yaml:"alphabet"`

	// Check is the existence-check mode. Defaults to direct.
	Check CheckMode `yaml:"check"`

	// ContentType optionally requires the response Content-Type to start
	// with this prefix for a direct-mode hit (e.g. "image/").
	ContentType string `yaml:"content_type"`
}

// URL builds the full probe URL for a candidate code.
func (s *Service) URL(code string) string {
	r := strings.NewReplacer("{domain}", s.Domain, "{code}", code)
	return r.Replace(s.Template)
}

// Symbols returns the service's alphabet as atomic symbols.
// The returned slice is shared and must not be mutated.
func (s *Service) Symbols() []string {
	return alphabets[s.Alphabet]
}

func (s *Service) defaults() {
	if s.Template == "" {
		s.Template = "https://i.{domain}/{code}"
	}
	if s.Check == "" {
		s.Check = CheckDirect
	}
}

func (s *Service) validate() error {
	if s.Domain == "" {
		return fmt.Errorf("catalog: service with empty domain")
	}
	if s.Length <= 0 {
		return fmt.Errorf("catalog: service %q: length must be positive, got %d", s.Domain, s.Length)
	}
	if _, ok := alphabets[s.Alphabet]; !ok {
		return fmt.Errorf("catalog: service %q: unknown alphabet %q", s.Domain, s.Alphabet)
	}
	if s.Check != CheckDirect && s.Check != CheckResolve {
		return fmt.Errorf("catalog: service %q: unknown check mode %q", s.Domain, s.Check)
	}
	if !strings.Contains(s.Template, "{code}") {
		return fmt.Errorf("catalog: service %q: template missing {code} placeholder", s.Domain)
	}
	return nil
}

// Catalog is the set of configured services. Read-only after New.
type Catalog struct {
	services []*Service
	byDomain map[string]*Service
}

// New builds a Catalog from descriptors, applying defaults and validating
// each entry. Duplicate domains and empty catalogs are rejected.
func New(services []Service) (*Catalog, error) {
	if len(services) == 0 {
		return nil, ErrNoServices
	}
	c := &Catalog{
		services: make([]*Service, 0, len(services)),
		byDomain: make(map[string]*Service, len(services)),
	}
	for i := range services {
		svc := services[i] // copy; descriptors are immutable once registered
		svc.defaults()
		if err := svc.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byDomain[svc.Domain]; dup {
			return nil, fmt.Errorf("catalog: duplicate service %q", svc.Domain)
		}
		c.byDomain[svc.Domain] = &svc
		c.services = append(c.services, &svc)
	}
	return c, nil
}

// Services returns all descriptors in configuration order.
func (c *Catalog) Services() []*Service { return c.services }

// Get returns the descriptor for a domain, or nil when unknown.
func (c *Catalog) Get(domain string) *Service { return c.byDomain[domain] }

// Len returns the number of configured services.
func (c *Catalog) Len() int { return len(c.services) }

// Domains returns all service domains in configuration order.
func (c *Catalog) Domains() []string {
	out := make([]string, len(c.services))
	for i, svc := range c.services {
		out[i] = svc.Domain
	}
	return out
}
