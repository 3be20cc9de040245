package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/observability"
)

// SiteCounterKey is the counter that backs generated site names.
const SiteCounterKey = "site"

const (
	minNameLength      = 5
	maxNameLength      = 50
	sanitisedNameLimit = 15
)

// NameGenerator hands out sequential, tenant-unique site names.
type NameGenerator struct {
	counters domain.CounterStore
	metrics  *observability.Metrics
}

// NewNameGenerator creates a generator over the given counter store.
func NewNameGenerator(counters domain.CounterStore, metrics *observability.Metrics) *NameGenerator {
	return &NameGenerator{counters: counters, metrics: metrics}
}

// NextName increments the tenant's site counter and returns "site_<n>".
// Uniqueness relies on the store's atomic increment; the counter must have
// been provisioned beforehand.
func (g *NameGenerator) NextName(ctx context.Context, tenant string) (string, error) {
	n, err := g.counters.IncrementCounter(ctx, tenant, SiteCounterKey)
	if err != nil {
		if errors.Is(err, domain.ErrCounterMissing) {
			return "", fmt.Errorf("tenant %q: %w", tenant, err)
		}
		return "", fmt.Errorf("increment site counter: %w", err)
	}
	g.metrics.NamesGenerated.Inc()
	return "site_" + strconv.FormatInt(n, 10), nil
}

// ValidateName checks a caller-supplied site name length.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return &domain.InvalidInputError{
			Field:  "name",
			Reason: fmt.Sprintf("length must be between %d and %d characters, got %d", minNameLength, maxNameLength, n),
		}
	}
	return nil
}

// SanitiseName strips whitespace, keeps the first 15 characters, and lower-cases.
func SanitiseName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > sanitisedNameLimit {
		name = string(runes[:sanitisedNameLimit])
	}
	return strings.ToLower(name)
}

// recoverName picks a display name for a stored site that lacks one, from its
// address fields. It returns "" when nothing usable is available.
func recoverName(s domain.Site) string {
	for _, candidate := range []string{s.Name, s.Parish, s.County, s.District} {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		if ValidateName(candidate) == nil {
			return candidate
		}
		if sanitised := SanitiseName(candidate); ValidateName(sanitised) == nil {
			return sanitised
		}
		return ""
	}
	return ""
}
