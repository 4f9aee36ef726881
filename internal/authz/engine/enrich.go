package engine

import (
	"context"
	"time"

	"custos/internal/authz/models"

	"golang.org/x/sync/errgroup"
)

// enrichTimeout is the maximum time to wait for enrichment lookups.
const enrichTimeout = 5 * time.Second

// ScopeFacts are organizational relationships between subject and object,
// resolved by an external membership source. Nil fields were not resolved.
type ScopeFacts struct {
	SameOrg      *bool
	SameLocation *bool
	InNetwork    *bool
	Affiliated   *bool
}

// ScopeSource resolves organizational scope facts for a subject/object pair.
// Optional: when absent, the caller must supply scope flags in the context.
type ScopeSource interface {
	Resolve(ctx context.Context, subject models.Subject, object models.Object) (ScopeFacts, error)
}

// enrichResult holds results from enrichment fetches. Each goroutine writes
// to its own field, avoiding data races.
type enrichResult struct {
	consent *models.ConsentResult
	scope   *ScopeFacts
}

// gatherEnrichment runs the consent and scope lookups in parallel with shared
// context cancellation. Results are merged into the working context by the
// caller after all goroutines complete.
func (e *Engine) gatherEnrichment(ctx context.Context, subject models.Subject, object models.Object, work *models.AuthorizationContext) (enrichResult, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	var result enrichResult

	if needsConsent(work) {
		g.Go(func() error {
			cr, err := e.consents.Evaluate(ctx, subject.UserID, object.ID, work)
			if err != nil {
				return err
			}
			result.consent = &cr
			return nil
		})
	}

	if e.scopes != nil && needsScope(work) {
		g.Go(func() error {
			sf, err := e.scopes.Resolve(ctx, subject, object)
			if err != nil {
				// Scope facts are optional enrichment; a failed resolve leaves
				// the flags unset and the guards unsatisfied, which is the
				// closed direction.
				if e.logger != nil {
					e.logger.DebugContext(ctx, "scope resolution failed",
						"user_id", subject.UserID,
						"object_id", object.ID,
						"error", err,
					)
				}
				return nil
			}
			result.scope = &sf
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return enrichResult{}, err
	}
	return result, nil
}

// needsConsent reports whether consent must be computed: PHI is in play and
// no trusted caller has already resolved it.
func needsConsent(work *models.AuthorizationContext) bool {
	return work.ContainsPHI != nil && *work.ContainsPHI && work.ConsentOK == nil
}

// needsScope reports whether any organizational flag is still unresolved.
func needsScope(work *models.AuthorizationContext) bool {
	return work.SameOrg == nil || work.SameLocation == nil || work.InNetwork == nil || work.Affiliated == nil
}

// applyScope fills unset scope flags only; explicit caller values win.
func applyScope(work *models.AuthorizationContext, facts ScopeFacts) {
	if work.SameOrg == nil {
		work.SameOrg = facts.SameOrg
	}
	if work.SameLocation == nil {
		work.SameLocation = facts.SameLocation
	}
	if work.InNetwork == nil {
		work.InNetwork = facts.InNetwork
	}
	if work.Affiliated == nil {
		work.Affiliated = facts.Affiliated
	}
}
