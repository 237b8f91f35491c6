package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// NetworkEntry is one recorded fetch/XHR completion.
type NetworkEntry struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Status int    `json:"status"`
	OK     bool   `json:"ok"`
	TS     int64  `json:"ts"`
	Error  string `json:"error,omitempty"`
}

const networkBufferCap = 2000

// networkMonitor mirrors page-side fetch/XHR shim activity into a
// host-side ring buffer so waitForResponse and the networkidle load
// state can be evaluated without round-tripping to the page on every
// poll tick.
type networkMonitor struct {
	installed    bool
	entries      []NetworkEntry
	inFlight     int
	lastActivity time.Time
}

// networkShimScript installs window.fetch / XMLHttpRequest wrappers that
// push completed requests into a capped array and track in-flight
// count, idempotently (after page.goto the host installs it again, since
// navigation resets the page's JS globals).
const networkShimScript = `(function(){
	if (window.__refreshmintNet) return "already-installed";
	window.__refreshmintNet = { log: [], inFlight: 0 };
	var origFetch = window.fetch;
	if (origFetch) {
		window.fetch = function(input, init){
			var url = (typeof input === "string") ? input : (input && input.url) || "";
			var method = (init && init.method) || (input && input.method) || "GET";
			window.__refreshmintNet.inFlight++;
			return origFetch.apply(this, arguments).then(function(resp){
				window.__refreshmintNet.inFlight--;
				window.__refreshmintNet.log.push({url:url, method:method, status:resp.status, ok:resp.ok, ts:Date.now()});
				if (window.__refreshmintNet.log.length > 2000) window.__refreshmintNet.log.shift();
				return resp;
			}).catch(function(err){
				window.__refreshmintNet.inFlight--;
				window.__refreshmintNet.log.push({url:url, method:method, status:0, ok:false, ts:Date.now(), error:String(err)});
				if (window.__refreshmintNet.log.length > 2000) window.__refreshmintNet.log.shift();
				throw err;
			});
		};
	}
	var OrigXHR = window.XMLHttpRequest;
	if (OrigXHR) {
		window.XMLHttpRequest = function(){
			var xhr = new OrigXHR();
			var url = "", method = "GET";
			var origOpen = xhr.open;
			xhr.open = function(m, u){ method = m; url = u; return origOpen.apply(xhr, arguments); };
			xhr.addEventListener("loadstart", function(){ window.__refreshmintNet.inFlight++; });
			xhr.addEventListener("loadend", function(){
				window.__refreshmintNet.inFlight--;
				window.__refreshmintNet.log.push({url:url, method:method, status:xhr.status, ok:xhr.status>=200&&xhr.status<300, ts:Date.now()});
				if (window.__refreshmintNet.log.length > 2000) window.__refreshmintNet.log.shift();
			});
			return xhr;
		};
	}
	return "installed";
})()`

func (rt *Runtime) ensureNetworkShims(ctx context.Context) error {
	if rt.net.installed {
		return nil
	}
	if _, err := rt.opts.Page.Evaluate(ctx, networkShimScript); err != nil {
		return err
	}
	rt.net.installed = true
	return nil
}

// drainNetworkLog pulls and clears the page-side log, merging it into
// the host-side ring buffer and refreshing inFlight/lastActivity.
func (rt *Runtime) drainNetworkLog(ctx context.Context) error {
	if err := rt.ensureNetworkShims(ctx); err != nil {
		return err
	}
	raw, err := rt.opts.Page.Evaluate(ctx, `JSON.stringify((function(){var n=window.__refreshmintNet; var log=n.log; n.log=[]; return {log:log, inFlight:n.inFlight};})())`)
	if err != nil {
		return err
	}
	var payload struct {
		Log      []NetworkEntry `json:"log"`
		InFlight int            `json:"inFlight"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return rmerrors.Wrap(rmerrors.KindDriverFault, "decode network log", err)
	}
	if len(payload.Log) > 0 {
		rt.net.lastActivity = time.Now()
	}
	rt.net.entries = append(rt.net.entries, payload.Log...)
	if excess := len(rt.net.entries) - networkBufferCap; excess > 0 {
		rt.net.entries = rt.net.entries[excess:]
	}
	rt.net.inFlight = payload.InFlight
	return nil
}

func (rt *Runtime) findResponse(urlPattern string) (NetworkEntry, bool) {
	for i := len(rt.net.entries) - 1; i >= 0; i-- {
		if matchPattern(urlPattern, rt.net.entries[i].URL) {
			return rt.net.entries[i], true
		}
	}
	return NetworkEntry{}, false
}

// networkIdle reports true once no request has been in flight or active
// for at least idleWindow.
func (rt *Runtime) networkIdle(idleWindow time.Duration) bool {
	if rt.net.inFlight > 0 {
		return false
	}
	if rt.net.lastActivity.IsZero() {
		return true
	}
	return time.Since(rt.net.lastActivity) >= idleWindow
}
