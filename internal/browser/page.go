package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Page is a CDP-backed page handle. It satisfies sandbox.PageController
// without internal/sandbox needing to import this package's CDP wire
// types directly.
type Page struct {
	b *Browser
}

// NewPage wraps a Browser's already-attached session as a Page handle.
func NewPage(b *Browser) *Page { return &Page{b: b} }

// Goto navigates the page to url and waits for the CDP acknowledgement
// (not for the load event — callers needing that call WaitForLoadState
// at the sandbox layer).
func (p *Page) Goto(ctx context.Context, target string) error {
	_, err := p.b.Send(ctx, "Page.navigate", map[string]string{"url": target})
	return err
}

// Reload reloads the current page.
func (p *Page) Reload(ctx context.Context) error {
	_, err := p.b.Send(ctx, "Page.reload", map[string]any{"ignoreCache": false})
	return err
}

// URL returns the page's current URL via Runtime.evaluate.
func (p *Page) URL(ctx context.Context) (string, error) {
	return p.evalString(ctx, "location.href")
}

// Host returns the page's current hostname, for secret domain matching.
func (p *Page) Host(ctx context.Context) (string, error) {
	return p.evalString(ctx, "location.hostname")
}

// Evaluate runs expression in the page's main world and returns the
// stringified result.
func (p *Page) Evaluate(ctx context.Context, expression string) (string, error) {
	return p.evalString(ctx, expression)
}

// Click evaluates a synthetic click on the first element matching css.
func (p *Page) Click(ctx context.Context, css string) error {
	_, err := p.evalJS(ctx, fmt.Sprintf(`(function(){var e=document.querySelector(%s); if(!e) throw new Error("no element matches selector"); e.click(); return true;})()`, jsString(css)))
	return err
}

// Type appends text to the value of the first element matching css one
// character at a time, dispatching an input event after each character
// and a single change event at the end, rather than assigning the value
// in bulk. No keydown/keyup events are dispatched.
func (p *Page) Type(ctx context.Context, css, text string) error {
	_, err := p.evalJS(ctx, fmt.Sprintf(`(function(){
		var e=document.querySelector(%s);
		if(!e) throw new Error("no element matches selector");
		e.focus();
		var text=%s;
		for (var i=0;i<text.length;i++){
			e.value=(e.value||"")+text[i];
			e.dispatchEvent(new Event("input",{bubbles:true}));
		}
		e.dispatchEvent(new Event("change",{bubbles:true}));
		return true;
	})()`, jsString(css), jsString(text)))
	return err
}

// Fill sets the value of the first element matching css directly,
// dispatching input and change events. Callers in internal/sandbox
// intercept this at a higher layer to substitute the real secret value
// when it matches a Secret Store entry for the page's host.
func (p *Page) Fill(ctx context.Context, css, value string) error {
	_, err := p.evalJS(ctx, fmt.Sprintf(`(function(){
		var e=document.querySelector(%s);
		if(!e) throw new Error("no element matches selector");
		e.value=%s;
		e.dispatchEvent(new Event("input",{bubbles:true}));
		e.dispatchEvent(new Event("change",{bubbles:true}));
		return true;
	})()`, jsString(css), jsString(value)))
	return err
}

// InnerHTML, InnerText, TextContent, GetAttribute, and InputValue read a
// single DOM property of the first element matching css.

func (p *Page) InnerHTML(ctx context.Context, css string) (string, error) {
	return p.evalElementProp(ctx, css, "innerHTML")
}

func (p *Page) InnerText(ctx context.Context, css string) (string, error) {
	return p.evalElementProp(ctx, css, "innerText")
}

func (p *Page) TextContent(ctx context.Context, css string) (string, error) {
	return p.evalElementProp(ctx, css, "textContent")
}

func (p *Page) InputValue(ctx context.Context, css string) (string, error) {
	return p.evalElementProp(ctx, css, "value")
}

func (p *Page) GetAttribute(ctx context.Context, css, name string) (string, error) {
	return p.evalString(ctx, fmt.Sprintf(`(function(){var e=document.querySelector(%s); return e?e.getAttribute(%s):null;})()`, jsString(css), jsString(name)))
}

func (p *Page) evalElementProp(ctx context.Context, css, prop string) (string, error) {
	return p.evalString(ctx, fmt.Sprintf(`(function(){var e=document.querySelector(%s); if(!e) throw new Error("no element matches selector"); return String(e[%s]||"");})()`, jsString(css), jsString(prop)))
}

// IsVisible reports whether the first element matching css has a
// non-zero bounding box and is not hidden via display, visibility, or
// opacity.
func (p *Page) IsVisible(ctx context.Context, css string) (bool, error) {
	return p.evalBool(ctx, fmt.Sprintf(`(function(){var e=document.querySelector(%s); if(!e) return false; var r=e.getBoundingClientRect(); var s=getComputedStyle(e); return r.width>0 && r.height>0 && s.display!=="none" && s.visibility!=="hidden" && s.opacity!=="0";})()`, jsString(css)))
}

// IsEnabled reports whether the first element matching css is not
// disabled.
func (p *Page) IsEnabled(ctx context.Context, css string) (bool, error) {
	return p.evalBool(ctx, fmt.Sprintf(`(function(){var e=document.querySelector(%s); return !!e && !e.disabled;})()`, jsString(css)))
}

// Screenshot captures the current page as a base64-encoded PNG via
// Page.captureScreenshot.
func (p *Page) Screenshot(ctx context.Context) (string, error) {
	raw, err := p.b.Send(ctx, "Page.captureScreenshot", map[string]string{"format": "png"})
	if err != nil {
		return "", err
	}
	var result struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", rmerrors.Wrap(rmerrors.KindDriverFault, "decode screenshot", err)
	}
	if _, err := base64.StdEncoding.DecodeString(result.Data); err != nil {
		return "", rmerrors.Wrap(rmerrors.KindDriverFault, "screenshot is not valid base64", err)
	}
	return result.Data, nil
}

// evalJS runs a Runtime.evaluate call and returns its raw result.
func (p *Page) evalJS(ctx context.Context, expr string) (json.RawMessage, error) {
	raw, err := p.b.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Result struct {
			Value any `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindDriverFault, "decode evaluate result", err)
	}
	if result.ExceptionDetails != nil {
		return nil, rmerrors.New(rmerrors.KindDriverFault, result.ExceptionDetails.Text)
	}
	return json.Marshal(result.Result.Value)
}

func (p *Page) evalString(ctx context.Context, expr string) (string, error) {
	raw, err := p.evalJS(ctx, expr)
	if err != nil {
		return "", err
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s, nil
}

func (p *Page) evalBool(ctx context.Context, expr string) (bool, error) {
	raw, err := p.evalJS(ctx, expr)
	if err != nil {
		return false, err
	}
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b, nil
}

func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// NormalizeHost strips scheme and port from a URL or bare host so it can
// be compared case-insensitively against a Secret Store domain at
// fill time.
func NormalizeHost(rawURLOrHost string) string {
	host := rawURLOrHost
	if u, err := url.Parse(rawURLOrHost); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return strings.ToLower(host)
}
