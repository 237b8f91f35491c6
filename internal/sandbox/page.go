package sandbox

import "context"

// PageController is the narrow surface the sandbox needs from a
// CDP-backed browser page. browser.Page satisfies it; tests substitute a
// stub so the JS bindings can be exercised without a real browser.
type PageController interface {
	Goto(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	Host(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expression string) (string, error)

	Click(ctx context.Context, css string) error
	Type(ctx context.Context, css, text string) error
	Fill(ctx context.Context, css, value string) error
	InnerHTML(ctx context.Context, css string) (string, error)
	InnerText(ctx context.Context, css string) (string, error)
	TextContent(ctx context.Context, css string) (string, error)
	GetAttribute(ctx context.Context, css, name string) (string, error)
	InputValue(ctx context.Context, css string) (string, error)
	IsVisible(ctx context.Context, css string) (bool, error)
	IsEnabled(ctx context.Context, css string) (bool, error)
	Screenshot(ctx context.Context) (string, error)
}
