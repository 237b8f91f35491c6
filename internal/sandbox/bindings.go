package sandbox

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/yonran/refreshmint/internal/browser"
)

func (rt *Runtime) installGlobals(ctx context.Context) error {
	if err := rt.installPageGlobal(ctx); err != nil {
		return err
	}
	rt.installRefreshmintGlobal()
	return nil
}

// argString extracts call.Argument(i) as a Go string, defaulting to ""
// when the argument is absent or undefined.
func argString(call goja.FunctionCall, i int) string {
	arg := call.Argument(i)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return ""
	}
	return arg.String()
}

func argTimeout(call goja.FunctionCall, i int) time.Duration {
	arg := call.Argument(i)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return defaultWaitTimeout
	}
	return time.Duration(arg.ToInteger()) * time.Millisecond
}

func (rt *Runtime) installPageGlobal(ctx context.Context) error {
	vm := rt.vm
	page := vm.NewObject()

	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = page.Set(name, fn)
	}

	set("goto", func(call goja.FunctionCall) goja.Value {
		if err := rt.opts.Page.Goto(ctx, argString(call, 0)); err != nil {
			throwGoError(vm, err)
		}
		rt.net.installed = false
		return goja.Undefined()
	})
	set("url", func(call goja.FunctionCall) goja.Value {
		u, err := rt.opts.Page.URL(ctx)
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(u)
	})
	set("reload", func(call goja.FunctionCall) goja.Value {
		if err := rt.opts.Page.Reload(ctx); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("evaluate", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.Evaluate(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("screenshot", func(call goja.FunctionCall) goja.Value {
		data, err := rt.opts.Page.Screenshot(ctx)
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(data)
	})

	set("click", func(call goja.FunctionCall) goja.Value {
		if err := rt.opts.Page.Click(ctx, argString(call, 0)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("type", func(call goja.FunctionCall) goja.Value {
		if err := rt.opts.Page.Type(ctx, argString(call, 0), argString(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("fill", func(call goja.FunctionCall) goja.Value {
		if err := rt.fill(ctx, argString(call, 0), argString(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("frameFill", func(call goja.FunctionCall) goja.Value {
		// Same-origin only: frame selector is informational since the
		// PageController surface operates on the single attached page.
		if err := rt.fill(ctx, argString(call, 1), argString(call, 2)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("frameEvaluate", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.Evaluate(ctx, argString(call, 1))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("innerHTML", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.InnerHTML(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("innerText", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.InnerText(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("textContent", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.TextContent(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("getAttribute", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.GetAttribute(ctx, argString(call, 0), argString(call, 1))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("inputValue", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.InputValue(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})
	set("isVisible", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.IsVisible(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(result)
	})
	set("isEnabled", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.IsEnabled(ctx, argString(call, 0))
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(result)
	})
	set("snapshot", func(call goja.FunctionCall) goja.Value {
		result, err := rt.opts.Page.Evaluate(ctx, accessibilitySnapshotScript)
		if err != nil {
			throwGoError(vm, err)
		}
		return vm.ToValue(rt.scrubbed(result))
	})

	set("waitForSelector", func(call goja.FunctionCall) goja.Value {
		if err := rt.waitForSelector(ctx, argString(call, 0), argTimeout(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("waitForNavigation", func(call goja.FunctionCall) goja.Value {
		if err := rt.waitForNavigation(ctx, argTimeout(call, 0)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("waitForURL", func(call goja.FunctionCall) goja.Value {
		if err := rt.waitForURL(ctx, argString(call, 0), argTimeout(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("waitForLoadState", func(call goja.FunctionCall) goja.Value {
		state := argString(call, 0)
		if state == "" {
			state = "load"
		}
		if err := rt.waitForLoadState(ctx, state, argTimeout(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("waitForResponse", func(call goja.FunctionCall) goja.Value {
		if err := rt.waitForResponse(ctx, argString(call, 0), argTimeout(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})

	set("setDialogHandler", func(call goja.FunctionCall) goja.Value {
		action := DialogAction(argString(call, 0))
		if err := rt.setDialogPolicy(ctx, action, argString(call, 1)); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})
	set("setPopupHandler", func(call goja.FunctionCall) goja.Value {
		action := PopupAction(argString(call, 0))
		if err := rt.setPopupPolicy(ctx, action); err != nil {
			throwGoError(vm, err)
		}
		return goja.Undefined()
	})

	// lastDialog and popupEvents are exposed as zero-argument accessor
	// functions rather than live properties: polling the page happens
	// on demand, not on every goja property access, which keeps the
	// binding surface to the same FunctionCall idiom as every other
	// page.* member.
	set("lastDialog", func(call goja.FunctionCall) goja.Value {
		_ = rt.pollLastDialog(ctx)
		if rt.lastDialog == nil {
			return goja.Null()
		}
		obj := vm.NewObject()
		_ = obj.Set("type", rt.lastDialog.Type)
		_ = obj.Set("message", rt.lastDialog.Message)
		_ = obj.Set("accepted", rt.lastDialog.Accepted)
		_ = obj.Set("promptValue", rt.lastDialog.PromptVal)
		return obj
	})
	set("popupEvents", func(call goja.FunctionCall) goja.Value {
		_ = rt.pollPopups(ctx)
		urls := make([]string, len(rt.popupEvents))
		for i, ev := range rt.popupEvents {
			urls[i] = ev.URL
		}
		return vm.ToValue(urls)
	})

	return vm.Set("page", page)
}

// fill implements the secret injection contract: if value names a
// secret whose domain matches the page's current host, substitute the
// real value at the CDP level so the driver's cleartext string never
// reaches the page.
func (rt *Runtime) fill(ctx context.Context, css, value string) error {
	host, err := rt.opts.Page.Host(ctx)
	if err != nil {
		return err
	}
	normalized := browser.NormalizeHost(host)
	if real, ok := rt.opts.Secrets.Resolve(normalized, value); ok {
		return rt.opts.Page.Fill(ctx, css, real)
	}
	return rt.opts.Page.Fill(ctx, css, value)
}

func (rt *Runtime) scrubbed(s string) string {
	return Scrub(rt.opts.Secrets.AllValues(), s)
}

const accessibilitySnapshotScript = `JSON.stringify((function walk(node){
	if (!node || node.nodeType !== 1) return null;
	var children = [];
	for (var i=0;i<node.children.length;i++){
		var c = walk(node.children[i]);
		if (c) children.push(c);
	}
	return {role: node.getAttribute("role") || node.tagName.toLowerCase(), name: (node.getAttribute("aria-label")||node.innerText||"").trim().slice(0,80), children: children};
})(document.body))`

