package filter

import (
	"fmt"
	"strings"
	"sync"

	"mail-autoresponder-go/internal/models"
)

// Decision is the outcome of evaluating one email. Reason always names the
// rule that decided.
type Decision struct {
	Approved        bool     `json:"approved"`
	Reason          string   `json:"reason"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// KeywordMatcher performs case-insensitive substring search of the configured
// keywords against subject and body.
type KeywordMatcher struct {
	mu       sync.RWMutex
	enabled  bool
	keywords []string
}

// NewKeywordMatcher creates a keyword matcher.
func NewKeywordMatcher(enabled bool, keywords []string) *KeywordMatcher {
	m := &KeywordMatcher{}
	m.SetEnabled(enabled)
	m.UpdateKeywords(keywords)
	return m
}

// SetEnabled toggles keyword filtering.
func (m *KeywordMatcher) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Enabled reports whether keyword filtering is on.
func (m *KeywordMatcher) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// UpdateKeywords replaces the keyword list.
func (m *KeywordMatcher) UpdateKeywords(keywords []string) {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(kw))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keywords = lowered
}

// Match returns every configured keyword that occurs in subject or body,
// case-insensitively. Substring match, not word-boundary.
func (m *KeywordMatcher) Match(subject, body string) []string {
	m.mu.RLock()
	keywords := m.keywords
	m.mu.RUnlock()

	haystack := strings.ToLower(subject + " " + body)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// DomainFilter checks sender domains against an exclusion set.
type DomainFilter struct {
	mu       sync.RWMutex
	excluded map[string]struct{}
}

// NewDomainFilter creates a domain filter.
func NewDomainFilter(domains []string) *DomainFilter {
	f := &DomainFilter{}
	f.UpdateExcludedDomains(domains)
	return f
}

// UpdateExcludedDomains replaces the exclusion set.
func (f *DomainFilter) UpdateExcludedDomains(domains []string) {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		set[d] = struct{}{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded = set
}

// ExtractDomain returns the lower-cased text after the first "@" in an
// address. Addresses without "@" yield the empty string, which never matches
// a configured exclusion.
func ExtractDomain(address string) string {
	idx := strings.Index(address, "@")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(address[idx+1:])
}

// Excluded reports whether the sender's domain is in the exclusion set, and
// returns the extracted domain.
func (f *DomainFilter) Excluded(from string) (string, bool) {
	domain := ExtractDomain(from)
	if domain == "" {
		return "", false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.excluded[domain]
	return domain, ok
}

// MessageFilter composes the domain filter and keyword matcher into a single
// admit/reject decision. Domain exclusion always takes precedence over
// keyword approval.
type MessageFilter struct {
	keywords *KeywordMatcher
	domains  *DomainFilter
}

// New creates a message filter from the current settings.
func New(settings *models.Settings) *MessageFilter {
	return &MessageFilter{
		keywords: NewKeywordMatcher(settings.KeywordsEnabled, settings.Keywords),
		domains:  NewDomainFilter(settings.ExcludedDomains),
	}
}

// Evaluate decides whether an email is eligible for an automatic reply.
func (f *MessageFilter) Evaluate(email models.EmailMessage) Decision {
	if domain, excluded := f.domains.Excluded(email.From); excluded {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("sender domain %q is excluded", domain),
		}
	}

	if !f.keywords.Enabled() {
		return Decision{
			Approved: true,
			Reason:   "keyword filtering disabled",
		}
	}

	matched := f.keywords.Match(email.Subject, email.Body)
	if len(matched) == 0 {
		return Decision{
			Approved: false,
			Reason:   "no keyword match",
		}
	}

	return Decision{
		Approved:        true,
		Reason:          fmt.Sprintf("keywords matched: %s", strings.Join(matched, ", ")),
		MatchedKeywords: matched,
	}
}

// OnSettingsUpdate applies the filter-relevant settings fields.
func (f *MessageFilter) OnSettingsUpdate(settings *models.Settings) {
	f.keywords.SetEnabled(settings.KeywordsEnabled)
	f.keywords.UpdateKeywords(settings.Keywords)
	f.domains.UpdateExcludedDomains(settings.ExcludedDomains)
}
