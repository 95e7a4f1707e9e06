package core

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/repository"
)

var (
	formCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_form_cache_hits_total",
		Help: "Form configuration lookups served from cache.",
	})
	formCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_form_cache_misses_total",
		Help: "Form configuration lookups that went to the database.",
	})
)

// FormProvider loads organization form configurations through an LRU cache
// with TTL. Writes go through Save so the cached copy is dropped.
type FormProvider struct {
	forms repository.FormRepository
	cache *expirable.LRU[string, field.FormConfig]
}

// NewFormProvider caches up to size forms for ttl each.
func NewFormProvider(forms repository.FormRepository, size int, ttl time.Duration) *FormProvider {
	if size <= 0 {
		size = 512
	}
	return &FormProvider{
		forms: forms,
		cache: expirable.NewLRU[string, field.FormConfig](size, nil, ttl),
	}
}

func formCacheKey(orgID, formKey string) string {
	return orgID + ":" + formKey
}

// Get returns the form of orgID for formKey.
func (p *FormProvider) Get(ctx context.Context, orgID, formKey string) (field.FormConfig, error) {
	key := formCacheKey(orgID, formKey)
	if form, ok := p.cache.Get(key); ok {
		formCacheHits.Inc()
		return form, nil
	}
	formCacheMisses.Inc()

	form, err := p.forms.Get(ctx, orgID, formKey)
	if err != nil {
		return field.FormConfig{}, notFoundAs(err, "common.form.config.not.exist")
	}
	p.cache.Add(key, form)
	return form, nil
}

// Save stores form and evicts the cached copy.
func (p *FormProvider) Save(ctx context.Context, orgID string, form field.FormConfig, userID string, at int64) error {
	if err := p.forms.Save(ctx, orgID, form, userID, at); err != nil {
		return err
	}
	p.Invalidate(orgID, form.FormKey)
	return nil
}

// Invalidate drops the cached form of orgID for formKey.
func (p *FormProvider) Invalidate(orgID, formKey string) {
	p.cache.Remove(formCacheKey(orgID, formKey))
}
