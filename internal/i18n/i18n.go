// Package i18n resolves user-facing labels and business error messages.
//
// Catalogs are flat JSON objects embedded at build time, one per locale.
// The request locale is matched from Accept-Language and stored in the
// context so background export workers translate with the caller's locale.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Supported locales. The first entry is the fallback for missing keys.
const (
	ZhCN = "zh-CN"
	EnUS = "en-US"
)

var supported = []language.Tag{
	language.SimplifiedChinese,
	language.AmericanEnglish,
}

var supportedNames = []string{ZhCN, EnUS}

type ctxKey struct{}

// Bundle holds translation catalogs for all supported locales.
type Bundle struct {
	mu            sync.RWMutex
	catalogs      map[string]map[string]string
	matcher       language.Matcher
	defaultLocale string
}

// NewBundle loads the embedded catalogs. defaultLocale is returned by Match
// when nothing in Accept-Language is supported.
func NewBundle(defaultLocale string) (*Bundle, error) {
	b := &Bundle{
		catalogs:      make(map[string]map[string]string),
		matcher:       language.NewMatcher(supported),
		defaultLocale: ZhCN,
	}
	if normalized := b.normalize(defaultLocale); normalized != "" {
		b.defaultLocale = normalized
	}

	for _, name := range supportedNames {
		data, err := localeFS.ReadFile(path.Join("locales", name+".json"))
		if err != nil {
			return nil, fmt.Errorf("i18n: read catalog %s: %w", name, err)
		}
		if err := b.LoadMessages(name, data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustBundle is NewBundle for tests and static wiring where the embedded
// catalogs are known to be valid.
func MustBundle(defaultLocale string) *Bundle {
	b, err := NewBundle(defaultLocale)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadMessages merges a flat JSON catalog into the given locale.
func (b *Bundle) LoadMessages(locale string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: parse catalog %s: %w", locale, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	catalog, ok := b.catalogs[locale]
	if !ok {
		catalog = make(map[string]string, len(messages))
		b.catalogs[locale] = catalog
	}
	for k, v := range messages {
		catalog[k] = v
	}
	return nil
}

// DefaultLocale returns the locale used when matching fails.
func (b *Bundle) DefaultLocale() string {
	return b.defaultLocale
}

// Match picks the best supported locale for an Accept-Language header.
func (b *Bundle) Match(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return b.defaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return b.defaultLocale
	}
	_, idx, conf := b.matcher.Match(tags...)
	if conf == language.No {
		return b.defaultLocale
	}
	return supportedNames[idx]
}

func (b *Bundle) normalize(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	_, idx, conf := b.matcher.Match(tag)
	if conf == language.No {
		return ""
	}
	return supportedNames[idx]
}

// Translate returns the message for key in locale, falling back to the
// first supported locale and finally to the key itself.
func (b *Bundle) Translate(locale, key string, args ...any) string {
	b.mu.RLock()
	msg, ok := b.catalogs[locale][key]
	if !ok {
		msg, ok = b.catalogs[supportedNames[0]][key]
	}
	b.mu.RUnlock()

	if !ok {
		msg = key
	}
	if len(args) == 0 {
		return msg
	}
	return sprintf(msg, args...)
}

// Has reports whether key exists in any catalog.
func (b *Bundle) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, catalog := range b.catalogs {
		if _, ok := catalog[key]; ok {
			return true
		}
	}
	return false
}

// T translates key using the locale stored in ctx.
func (b *Bundle) T(ctx context.Context, key string, args ...any) string {
	return b.Translate(b.LocaleFrom(ctx), key, args...)
}

// LocaleFrom returns the locale stored in ctx or the bundle default.
func (b *Bundle) LocaleFrom(ctx context.Context) string {
	if locale := Locale(ctx); locale != "" {
		return locale
	}
	return b.defaultLocale
}

// WithLocale stores the request locale in ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

// Locale returns the locale stored in ctx, or "".
func Locale(ctx context.Context) string {
	locale, _ := ctx.Value(ctxKey{}).(string)
	return locale
}

// Catalog strings are data, so the format is not a constant.
var sprintf = fmt.Sprintf
