package classifier

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
)

// CachedClassifier wraps a Classifier with an in-memory LRU cache keyed by
// image reference. Report images are immutable once uploaded, so an answer
// for a reference stays valid for the life of the process.
type CachedClassifier struct {
	inner   domain.Classifier
	cache   *lru.Cache[string, domain.ImageAssessment]
	metrics *observability.Metrics
}

// NewCachedClassifier creates a cache decorator around a classifier.
func NewCachedClassifier(inner domain.Classifier, maxEntries int, metrics *observability.Metrics) (*CachedClassifier, error) {
	cache, err := lru.New[string, domain.ImageAssessment](maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachedClassifier{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedClassifier) Assess(ctx context.Context, imageRef string) (domain.ImageAssessment, error) {
	if a, ok := c.cache.Get(imageRef); ok {
		c.metrics.ClassifierCache.WithLabelValues("hit").Inc()
		return a, nil
	}
	c.metrics.ClassifierCache.WithLabelValues("miss").Inc()

	a, err := c.inner.Assess(ctx, imageRef)
	if err != nil {
		// Failures are not cached so a transient outage can be retried.
		return a, err
	}
	c.cache.Add(imageRef, a)
	return a, nil
}

// Len reports the number of cached assessments.
func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}
