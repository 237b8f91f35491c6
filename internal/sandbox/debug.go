package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"runtime"
	"sync"

	"github.com/gofrs/flock"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// DebugRequest is one framed message accepted by the debug socket
//: `{"command":"exec","script":"..."}` or
// `{"command":"stop"}`.
type DebugRequest struct {
	Command string `json:"command"`
	Script  string `json:"script"`
}

// DebugResponse is the socket's reply to one request.
type DebugResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DebugServer listens on a Unix domain socket for exec/stop commands,
// running each exec in the given Runtime against the same browser
// session. A single advisory lock on the containing login directory
// prevents two concurrent debug sessions.
type DebugServer struct {
	socketPath string
	lockPath   string
	runtime    *Runtime

	mu       sync.Mutex
	listener net.Listener
	lock     *flock.Flock
}

// NewDebugServer binds a debug socket to socketPath, guarded by an
// advisory lock at lockPath. On a non-Unix platform this returns
// KindUnsupported, per the error table.
func NewDebugServer(socketPath, lockPath string, rt *Runtime) (*DebugServer, error) {
	if runtime.GOOS == "windows" {
		return nil, rmerrors.Unsupported("debug socket is not supported on this platform")
	}
	return &DebugServer{socketPath: socketPath, lockPath: lockPath, runtime: rt}, nil
}

// Serve acquires the login lock, listens on the Unix socket, and
// accepts connections until ctx is cancelled or Close is called.
func (d *DebugServer) Serve(ctx context.Context) error {
	lock := flock.New(d.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return rmerrors.IOFault("acquire login lock", err)
	}
	if !locked {
		return rmerrors.Conflict("another process holds the login lock for this account")
	}
	d.mu.Lock()
	d.lock = lock
	d.mu.Unlock()
	defer lock.Unlock()

	_ = os.Remove(d.socketPath)
	ln, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return rmerrors.IOFault("listen on debug socket", err)
	}
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return rmerrors.IOFault("accept debug connection", err)
			}
		}
		go d.handle(ctx, conn)
	}
}

// Close tears down the listener and releases the login lock early.
func (d *DebugServer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener != nil {
		_ = d.listener.Close()
	}
	if d.lock != nil {
		return d.lock.Unlock()
	}
	return nil
}

func (d *DebugServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req DebugRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(DebugResponse{OK: false, Error: "malformed request"})
			continue
		}
		switch req.Command {
		case "exec":
			result := d.runtime.RunDriver(ctx, req.Script)
			if result.Outcome == OutcomeRejected {
				_ = enc.Encode(DebugResponse{OK: false, Error: result.Error.Error()})
				continue
			}
			if _, err := d.runtime.FinalizeResources(); err != nil {
				_ = enc.Encode(DebugResponse{OK: false, Error: err.Error()})
				continue
			}
			_ = enc.Encode(DebugResponse{OK: true})
		case "stop":
			_ = enc.Encode(DebugResponse{OK: true})
			return
		default:
			_ = enc.Encode(DebugResponse{OK: false, Error: "unknown command"})
		}
	}
}
