// Package browser locates and launches a Chromium-family browser and
// owns its Chrome DevTools Protocol (CDP) session: a gorilla/websocket
// connection to the page's webSocketDebuggerUrl, carrying one JSON
// message per websocket frame.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yonran/refreshmint/internal/metrics"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/pkg/logger"
)

// candidatePaths lists well-known Chromium-family executable locations
// per platform, checked before falling back to a PATH search.
func candidatePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/usr/bin/microsoft-edge",
		}
	}
}

var pathLookup = exec.LookPath

// FindExecutable locates a Chromium-family executable: first the
// platform's well-known paths, then PATH entries for "google-chrome",
// "google-chrome-stable", "chromium", "chromium-browser", "chrome", and
// "msedge", in that order.
func FindExecutable() (string, error) {
	for _, p := range candidatePaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome", "msedge"} {
		if path, err := pathLookup(name); err == nil {
			return path, nil
		}
	}
	return "", rmerrors.NotFound("browser executable", "no Chromium-family binary found in well-known paths or PATH")
}

// Browser owns a launched Chromium process and one CDP websocket session
// attached to its initial page.
type Browser struct {
	cmd    *exec.Cmd
	conn   *websocket.Conn
	nextID int64

	mu      sync.Mutex
	pending map[int64]chan cdpResponse

	Events  chan Event
	metrics *metrics.Metrics
	log     *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Event is an unsolicited CDP message (a method with no matching request
// id): `{method, params}`.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type cdpRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *cdpError       `json:"error"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Launch starts execPath with a dedicated user-data directory (so
// cookies and local storage persist across runs for one account) and an
// ephemeral remote-debugging port, discovers the initial page's
// webSocketDebuggerUrl over the browser's /json/list HTTP endpoint, and
// dials it.
func Launch(ctx context.Context, execPath, userDataDir string, extraArgs ...string) (*Browser, error) {
	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return nil, rmerrors.IOFault("create browser user data directory", err)
	}

	port, err := freeTCPPort()
	if err != nil {
		return nil, rmerrors.IOFault("allocate remote debugging port", err)
	}

	args := append([]string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
	}, extraArgs...)

	cmd := exec.CommandContext(ctx, execPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "launch browser", err)
	}

	wsURL, err := waitForDebuggerURL(ctx, port)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "dial CDP websocket", err)
	}

	b := &Browser{
		cmd:     cmd,
		conn:    conn,
		pending: make(map[int64]chan cdpResponse),
		Events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

// SetMetrics attaches a metrics sink for reconnect/drop counters.
func (b *Browser) SetMetrics(m *metrics.Metrics) { b.metrics = m }

// SetLogger attaches a logger for the pump's swallowed-frame path: a
// malformed or dropped CDP message is non-fatal and must not crash the
// session, but it is still worth a warning log.
func (b *Browser) SetLogger(log *logger.Logger) { b.log = log }

// newBrowserFromConn wraps an already-dialed CDP websocket connection,
// skipping process launch and debugger discovery. Used by tests against
// a local websocket server standing in for a real browser.
func newBrowserFromConn(conn *websocket.Conn) *Browser {
	b := &Browser{
		conn:    conn,
		pending: make(map[int64]chan cdpResponse),
		Events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
	go b.pump()
	return b
}

// freeTCPPort asks the OS for an ephemeral port by briefly binding one.
func freeTCPPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// devtoolsTarget is one entry of the browser's /json/list response.
type devtoolsTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// waitForDebuggerURL polls the browser's HTTP debugging endpoint until a
// page target appears, preferring an already-attached page over opening
// a new about:blank tab.
func waitForDebuggerURL(ctx context.Context, port int) (string, error) {
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(10 * time.Second)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", rmerrors.Timeout("browser debugger ready", "")
		default:
		}

		resp, err := client.Get(base + "/json/list")
		if err == nil {
			var targets []devtoolsTarget
			if json.NewDecoder(resp.Body).Decode(&targets) == nil {
				resp.Body.Close()
				for _, t := range targets {
					if t.Type == "page" && t.WebSocketDebuggerURL != "" {
						return t.WebSocketDebuggerURL, nil
					}
				}
			} else {
				resp.Body.Close()
			}
			// No attached page yet: ask the browser to open one.
			putReq, putErr := http.NewRequest(http.MethodPut, base+"/json/new?about:blank", nil)
			var newResp *http.Response
			if putErr == nil {
				putReq.Header.Set("Content-Type", "text/plain")
				newResp, err = client.Do(putReq)
			} else {
				err = putErr
			}
			if err == nil {
				var t devtoolsTarget
				if json.NewDecoder(newResp.Body).Decode(&t) == nil && t.WebSocketDebuggerURL != "" {
					newResp.Body.Close()
					return t.WebSocketDebuggerURL, nil
				}
				newResp.Body.Close()
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return "", rmerrors.Timeout("browser debugger ready", base)
}

// pump drains the CDP websocket, routing responses to their waiting
// caller and events to Events. A fatal transport error (the connection
// closing) terminates the pump; a malformed individual frame is counted
// and swallowed so one bad message cannot crash the session.
func (b *Browser) pump() {
	defer close(b.done)
	defer close(b.Events)
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			return // fatal: websocket closed or broken
		}

		var envelope struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			Result json.RawMessage `json:"result"`
			Error  *cdpError       `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			b.recordDropped()
			if b.log != nil {
				b.log.WithError(err).Warn("dropped malformed CDP frame")
			}
			continue
		}

		if envelope.ID != 0 {
			b.mu.Lock()
			ch, ok := b.pending[envelope.ID]
			delete(b.pending, envelope.ID)
			b.mu.Unlock()
			if ok {
				ch <- cdpResponse{ID: envelope.ID, Result: envelope.Result, Error: envelope.Error}
			}
			continue
		}
		if envelope.Method != "" {
			select {
			case b.Events <- Event{Method: envelope.Method, Params: envelope.Params}:
			default:
				b.recordDropped() // event buffer full; non-fatal
				if b.log != nil {
					b.log.WithField("method", envelope.Method).Warn("dropped CDP event: event buffer full")
				}
			}
		}
	}
}

func (b *Browser) recordDropped() {
	if b.metrics != nil {
		b.metrics.RecordCDPEventDropped()
	}
}

// Send issues a CDP method call and blocks for its matching response.
func (b *Browser) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&b.nextID, 1)
	ch := make(chan cdpResponse, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	req := cdpRequest{ID: id, Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindDriverFault, "encode CDP request", err)
	}
	if err := b.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "write CDP request", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, rmerrors.New(rmerrors.KindDriverFault, fmt.Sprintf("CDP error %d: %s", resp.Error.Code, resp.Error.Message))
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, rmerrors.Timeout(method, "")
	case <-b.done:
		return nil, rmerrors.Wrap(rmerrors.KindIOFault, "CDP session closed", nil)
	}
}

// Close terminates the CDP connection and the browser process.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.conn.Close()
		if b.cmd != nil && b.cmd.Process != nil {
			_ = b.cmd.Process.Kill()
		}
	})
	return err
}

// UserDataDirFor returns the conventional per-login user-data directory
// path beneath a ledger's root, so cookies/local storage persist across
// scrape sessions for the same account.
func UserDataDirFor(ledgerRoot, login string) string {
	return filepath.Join(ledgerRoot, "logins", login, "browser-profile")
}
