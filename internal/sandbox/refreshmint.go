package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// installRefreshmintGlobal registers the session-scoped helper object
//: saveResource, reportValue, log, prompt.
func (rt *Runtime) installRefreshmintGlobal() {
	vm := rt.vm
	obj := vm.NewObject()
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}

	set("saveResource", func(call goja.FunctionCall) goja.Value {
		filename := argString(call, 0)
		encoded := argString(call, 1)
		if err := rt.saveResource(filename, encoded); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})

	set("reportValue", func(call goja.FunctionCall) goja.Value {
		key := argString(call, 0)
		value := fmt.Sprint(call.Argument(1).Export())
		rt.reported[key] = value
		fmt.Fprintf(rt.opts.Stdout, "%s=%s\n", key, value)
		return goja.Undefined()
	})

	set("log", func(call goja.FunctionCall) goja.Value {
		fmt.Fprintln(rt.opts.Stderr, argString(call, 0))
		return goja.Undefined()
	})

	set("prompt", func(call goja.FunctionCall) goja.Value {
		msg := argString(call, 0)
		if override, ok := rt.opts.PromptOverrides[msg]; ok {
			return vm.ToValue(override)
		}
		line, err := readLine(rt.opts.Stdin)
		if err != nil {
			throwGoError(vm, rmerrors.IOFault("read prompt response", err))
		}
		return vm.ToValue(line)
	})

	_ = vm.Set("refreshmint", obj)
}

// saveResource decodes filename's base64 payload and writes it to the
// run's staging directory, recording it for the caller's finalize step,
// which moves staged files into the login/label documents directory
// with a sidecar .info.json.
func (rt *Runtime) saveResource(filename, base64Payload string) error {
	if rt.opts.StagingDir == "" {
		return rmerrors.InvalidInput("staging_dir", "saveResource requires a configured staging directory")
	}
	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindInvalidInput, "decode saveResource payload", err)
	}
	if err := os.MkdirAll(rt.opts.StagingDir, 0o755); err != nil {
		return rmerrors.IOFault("create staging directory", err)
	}
	dest := filepath.Join(rt.opts.StagingDir, filepath.Base(filename))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return rmerrors.IOFault("write staged resource", err)
	}
	rt.saved = append(rt.saved, dest)
	return nil
}

// FinalizeResources moves every file staged during a run into
// rt.opts.OutputDir and writes a sidecar "<name>.info.json" describing
// it.
func (rt *Runtime) FinalizeResources() ([]string, error) {
	if rt.opts.OutputDir == "" {
		return nil, rmerrors.InvalidInput("output_dir", "finalize requires a configured output directory")
	}
	if err := os.MkdirAll(rt.opts.OutputDir, 0o755); err != nil {
		return nil, rmerrors.IOFault("create documents directory", err)
	}
	var finalized []string
	for _, staged := range rt.saved {
		name := filepath.Base(staged)
		dest := filepath.Join(rt.opts.OutputDir, name)
		data, err := os.ReadFile(staged)
		if err != nil {
			return finalized, rmerrors.IOFault("read staged resource", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return finalized, rmerrors.IOFault("write finalized resource", err)
		}
		info := map[string]any{
			"name":      name,
			"size":      len(data),
			"finalized": time.Now().UTC().Format(time.RFC3339),
		}
		raw, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return finalized, rmerrors.Wrap(rmerrors.KindIOFault, "encode resource sidecar", err)
		}
		if err := os.WriteFile(dest+".info.json", raw, 0o644); err != nil {
			return finalized, rmerrors.IOFault("write resource sidecar", err)
		}
		_ = os.Remove(staged)
		finalized = append(finalized, dest)
	}
	rt.saved = nil
	return finalized, nil
}

func readLine(r interface{ Read([]byte) (int, error) }) (string, error) {
	buf := make([]byte, 0, 256)
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n > 0 {
			if b[0] == '\n' {
				break
			}
			buf = append(buf, b[0])
		}
		if err != nil {
			if len(buf) > 0 {
				break
			}
			return "", err
		}
	}
	return string(buf), nil
}
