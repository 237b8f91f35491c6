package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

const (
	defaultWaitTimeout = 30 * time.Second
	pollInterval       = 100 * time.Millisecond
	networkIdleWindow  = 500 * time.Millisecond
)

// poll invokes check every pollInterval until it reports true, the
// timeout elapses, or ctx is cancelled. A timed-out wait returns a
// TimeoutError embedding pattern and the page's current URL.
func (rt *Runtime) poll(ctx context.Context, timeout time.Duration, pattern string, check func() (bool, error)) error {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			url, _ := rt.opts.Page.URL(ctx)
			return rmerrors.Timeout(pattern, url)
		}
		select {
		case <-ctx.Done():
			url, _ := rt.opts.Page.URL(ctx)
			return rmerrors.Timeout(pattern, url)
		case <-ticker.C:
		}
	}
}

func (rt *Runtime) evalBoolExpr(ctx context.Context, expr string) (bool, error) {
	result, err := rt.opts.Page.Evaluate(ctx, fmt.Sprintf("String(!!(%s))", expr))
	if err != nil {
		return false, err
	}
	return result == "true", nil
}

func (rt *Runtime) waitForSelector(ctx context.Context, css string, timeout time.Duration) error {
	return rt.poll(ctx, timeout, "selector:"+css, func() (bool, error) {
		return rt.evalBoolExpr(ctx, fmt.Sprintf("document.querySelector(%s) !== null", jsQuote(css)))
	})
}

func (rt *Runtime) waitForNavigation(ctx context.Context, timeout time.Duration) error {
	startURL, err := rt.opts.Page.URL(ctx)
	if err != nil {
		return err
	}
	return rt.poll(ctx, timeout, "navigation", func() (bool, error) {
		cur, err := rt.opts.Page.URL(ctx)
		if err != nil {
			return false, err
		}
		if cur != startURL {
			return true, nil
		}
		state, err := rt.opts.Page.Evaluate(ctx, "document.readyState")
		if err != nil {
			return false, err
		}
		return state == "complete", nil
	})
}

func (rt *Runtime) waitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	return rt.poll(ctx, timeout, pattern, func() (bool, error) {
		cur, err := rt.opts.Page.URL(ctx)
		if err != nil {
			return false, err
		}
		return matchPattern(pattern, cur), nil
	})
}

func (rt *Runtime) waitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	switch state {
	case "load":
		return rt.poll(ctx, timeout, "load", func() (bool, error) {
			return rt.evalBoolExpr(ctx, `document.readyState === "complete"`)
		})
	case "domcontentloaded":
		return rt.poll(ctx, timeout, "domcontentloaded", func() (bool, error) {
			return rt.evalBoolExpr(ctx, `document.readyState !== "loading"`)
		})
	case "networkidle":
		return rt.poll(ctx, timeout, "networkidle", func() (bool, error) {
			if err := rt.drainNetworkLog(ctx); err != nil {
				return false, err
			}
			return rt.networkIdle(networkIdleWindow), nil
		})
	default:
		return rmerrors.InvalidInput("state", fmt.Sprintf("unknown load state %q", state))
	}
}

func (rt *Runtime) waitForResponse(ctx context.Context, urlPattern string, timeout time.Duration) error {
	return rt.poll(ctx, timeout, urlPattern, func() (bool, error) {
		if err := rt.drainNetworkLog(ctx); err != nil {
			return false, err
		}
		_, ok := rt.findResponse(urlPattern)
		return ok, nil
	})
}
