package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePage is a minimal in-memory PageController stand-in: it tracks a
// current URL, a set of "elements" keyed by CSS selector, and echoes
// evaluate() expressions it recognizes directly rather than running
// real JS, since there is no DOM in this test process.
type fakePage struct {
	mu       sync.Mutex
	url      string
	host     string
	elements map[string]string // css -> value/text
	filled   map[string]string // css -> last fill() value observed
	readyAt  int               // evaluate() calls after which readyState flips to complete
	evalN    int
}

func newFakePage() *fakePage {
	return &fakePage{
		url:      "https://bank.example.com/login",
		host:     "bank.example.com",
		elements: map[string]string{},
		filled:   map[string]string{},
	}
}

func (p *fakePage) Goto(ctx context.Context, u string) error { p.mu.Lock(); defer p.mu.Unlock(); p.url = u; return nil }
func (p *fakePage) URL(ctx context.Context) (string, error)  { p.mu.Lock(); defer p.mu.Unlock(); return p.url, nil }
func (p *fakePage) Reload(ctx context.Context) error          { return nil }
func (p *fakePage) Host(ctx context.Context) (string, error)  { return p.host, nil }

func (p *fakePage) Evaluate(ctx context.Context, expr string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalN++
	switch {
	case strings.Contains(expr, "document.querySelector(") && strings.Contains(expr, "!== null"):
		for css := range p.elements {
			if strings.Contains(expr, css) {
				return "true", nil
			}
		}
		return "false", nil
	case strings.Contains(expr, "document.readyState"):
		if p.readyAt > 0 && p.evalN >= p.readyAt {
			if strings.Contains(expr, "!==") {
				return "true", nil
			}
			return "complete", nil
		}
		if strings.Contains(expr, "!==") {
			return "true", nil
		}
		return "loading", nil
	case strings.HasPrefix(expr, "window.__refreshmintNet") || strings.Contains(expr, "__refreshmintNet"):
		return `{"log":[],"inFlight":0}`, nil
	case strings.Contains(expr, "__refreshmintDialog"):
		return "null", nil
	case strings.Contains(expr, "__refreshmintPopups"):
		return "[]", nil
	}
	return expr, nil
}

func (p *fakePage) Click(ctx context.Context, css string) error { return nil }
func (p *fakePage) Type(ctx context.Context, css, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[css] = text
	return nil
}
func (p *fakePage) Fill(ctx context.Context, css, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[css] = value
	p.elements[css] = value
	return nil
}
func (p *fakePage) InnerHTML(ctx context.Context, css string) (string, error) { return p.elements[css], nil }
func (p *fakePage) InnerText(ctx context.Context, css string) (string, error) { return p.elements[css], nil }
func (p *fakePage) TextContent(ctx context.Context, css string) (string, error) {
	return p.elements[css], nil
}
func (p *fakePage) GetAttribute(ctx context.Context, css, name string) (string, error) {
	return p.elements[css], nil
}
func (p *fakePage) InputValue(ctx context.Context, css string) (string, error) { return p.elements[css], nil }
func (p *fakePage) IsVisible(ctx context.Context, css string) (bool, error) {
	_, ok := p.elements[css]
	return ok, nil
}
func (p *fakePage) IsEnabled(ctx context.Context, css string) (bool, error) { return true, nil }
func (p *fakePage) Screenshot(ctx context.Context) (string, error)         { return "cGFnZQ==", nil }

type fakeSecrets struct {
	byDomain map[string]map[string]string
}

func (s fakeSecrets) Resolve(domain, name string) (string, bool) {
	byName, ok := s.byDomain[domain]
	if !ok {
		return "", false
	}
	v, ok := byName[name]
	return v, ok
}

func (s fakeSecrets) AllValues() []string {
	var out []string
	for _, byName := range s.byDomain {
		for _, v := range byName {
			out = append(out, v)
		}
	}
	return out
}

func TestRunDriverFulfilledReturnsReportedValues(t *testing.T) {
	page := newFakePage()
	rt := New(page, Options{})

	result := rt.RunDriver(context.Background(), `
		await page.goto("https://bank.example.com/accounts");
		refreshmint.reportValue("status", "ok");
		return "done";
	`)

	require.Equal(t, OutcomeFulfilled, result.Outcome)
	require.Equal(t, "ok", result.ReportedKeys["status"])
}

func TestRunDriverRejectedCarriesJSStack(t *testing.T) {
	page := newFakePage()
	rt := New(page, Options{})

	result := rt.RunDriver(context.Background(), `throw new Error("boom");`)

	require.Equal(t, OutcomeRejected, result.Outcome)
	require.Error(t, result.Error)
}

func TestFillSubstitutesMatchingSecret(t *testing.T) {
	page := newFakePage()
	secrets := fakeSecrets{byDomain: map[string]map[string]string{
		"bank.example.com": {"bank-password": "s3cr3t-value"},
	}}
	rt := New(page, Options{Secrets: secrets})

	result := rt.RunDriver(context.Background(), `
		await page.fill("#password", "bank-password");
		return "ok";
	`)

	require.Equal(t, OutcomeFulfilled, result.Outcome)
	require.Equal(t, "s3cr3t-value", page.filled["#password"])
}

func TestEvaluateScrubsSecretValues(t *testing.T) {
	page := newFakePage()
	page.elements = map[string]string{}
	secrets := fakeSecrets{byDomain: map[string]map[string]string{
		"bank.example.com": {"api-key": "topsecret123"},
	}}
	rt := New(page, Options{Secrets: secrets})

	result := rt.RunDriver(context.Background(), fmt.Sprintf(`
		return page.evaluate(%q);
	`, "topsecret123"))

	require.Equal(t, OutcomeFulfilled, result.Outcome)
	require.Equal(t, redacted, result.Value)
}

func TestWaitForSelectorTimesOut(t *testing.T) {
	page := newFakePage()
	rt := New(page, Options{})

	result := rt.RunDriver(context.Background(), `
		await page.waitForSelector("#never-appears", 150);
	`)

	require.Equal(t, OutcomeRejected, result.Outcome)
}

func TestWaitForSelectorSucceedsWhenElementPresent(t *testing.T) {
	page := newFakePage()
	page.elements["#ready"] = "x"
	rt := New(page, Options{})

	result := rt.RunDriver(context.Background(), `
		await page.waitForSelector("#ready", 1000);
		return "found";
	`)

	require.Equal(t, OutcomeFulfilled, result.Outcome)
}

func TestScrubRedactsEveryOccurrence(t *testing.T) {
	out := Scrub([]string{"abc123"}, "token is abc123 and again abc123")
	require.Equal(t, "token is [REDACTED] and again [REDACTED]", out)
}

func TestMatchPatternWildcards(t *testing.T) {
	require.True(t, matchPattern("**/api/transactions", "https://bank.example.com/api/transactions"))
	require.True(t, matchPattern("*.example.com", "bank.example.com"))
	require.False(t, matchPattern("*.example.com", "bank.example.org"))
	require.True(t, matchPattern("https://bank.example.com/accounts", "https://bank.example.com/accounts"))
}
