package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// DialogAction is a driver's standing policy for alert/confirm/prompt.
type DialogAction string

const (
	DialogAccept  DialogAction = "accept"
	DialogDismiss DialogAction = "dismiss"
	DialogNone    DialogAction = "none"
)

// PopupAction is a driver's standing policy for window.open.
type PopupAction string

const (
	PopupIgnore  PopupAction = "ignore"
	PopupSameTab PopupAction = "same_tab"
)

// DialogEvent records one observed alert/confirm/prompt.
type DialogEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Accepted  bool      `json:"accepted"`
	PromptVal string    `json:"promptValue,omitempty"`
	At        time.Time `json:"at"`
}

// PopupEvent records one observed window.open call.
type PopupEvent struct {
	URL string    `json:"url"`
	At  time.Time `json:"at"`
}

// dialogShimScript installs window.alert/confirm/prompt overrides that
// record the call and resolve per the host's current policy, read back
// from window.__refreshmintDialogPolicy on every call so
// setDialogHandler can change it mid-run without reinstalling the shim.
const dialogShimScript = `(function(){
	if (window.__refreshmintDialog) return;
	window.__refreshmintDialogPolicy = {action:"dismiss", promptText:""};
	window.__refreshmintDialog = {last:null};
	window.alert = function(msg){
		var p = window.__refreshmintDialogPolicy;
		window.__refreshmintDialog.last = {type:"alert", message:String(msg), accepted: p.action==="accept"};
	};
	window.confirm = function(msg){
		var p = window.__refreshmintDialogPolicy;
		var accepted = p.action === "accept";
		window.__refreshmintDialog.last = {type:"confirm", message:String(msg), accepted: accepted};
		return accepted;
	};
	window.prompt = function(msg, def){
		var p = window.__refreshmintDialogPolicy;
		var accepted = p.action === "accept";
		window.__refreshmintDialog.last = {type:"prompt", message:String(msg), accepted: accepted, promptValue: p.promptText||""};
		return accepted ? (p.promptText||"") : null;
	};
	window.__refreshmintPopups = [];
	var origOpen = window.open;
	window.open = function(url){
		window.__refreshmintPopups.push({url:String(url||""), ts:Date.now()});
		if (window.__refreshmintPopupPolicy === "same_tab") {
			window.location.href = url;
			return null;
		}
		return null;
	};
})()`

func (rt *Runtime) ensureDialogShims(ctx context.Context) error {
	if rt.dialogInstalled {
		return nil
	}
	if _, err := rt.opts.Page.Evaluate(ctx, dialogShimScript); err != nil {
		return err
	}
	rt.dialogInstalled = true
	return nil
}

// setDialogPolicy pushes the driver's chosen policy into the page so
// the next alert/confirm/prompt resolves accordingly.
func (rt *Runtime) setDialogPolicy(ctx context.Context, action DialogAction, promptText string) error {
	if err := rt.ensureDialogShims(ctx); err != nil {
		return err
	}
	script := fmt.Sprintf(`window.__refreshmintDialogPolicy = {action:%s, promptText:%s}`, jsQuote(string(action)), jsQuote(promptText))
	_, err := rt.opts.Page.Evaluate(ctx, script)
	return err
}

func (rt *Runtime) setPopupPolicy(ctx context.Context, action PopupAction) error {
	if err := rt.ensureDialogShims(ctx); err != nil {
		return err
	}
	script := fmt.Sprintf(`window.__refreshmintPopupPolicy = %s`, jsQuote(string(action)))
	_, err := rt.opts.Page.Evaluate(ctx, script)
	return err
}

// pollLastDialog reads and clears the page's last observed dialog, if
// any, merging it into rt.lastDialog.
func (rt *Runtime) pollLastDialog(ctx context.Context) error {
	if err := rt.ensureDialogShims(ctx); err != nil {
		return err
	}
	raw, err := rt.opts.Page.Evaluate(ctx, `JSON.stringify((function(){var d=window.__refreshmintDialog.last; window.__refreshmintDialog.last=null; return d;})())`)
	if err != nil {
		return err
	}
	if raw == "" || raw == "null" {
		return nil
	}
	var ev DialogEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return rmerrors.Wrap(rmerrors.KindDriverFault, "decode dialog event", err)
	}
	ev.At = time.Now()
	rt.lastDialog = &ev
	return nil
}

// pollPopups reads and clears the page's observed window.open calls.
func (rt *Runtime) pollPopups(ctx context.Context) error {
	if err := rt.ensureDialogShims(ctx); err != nil {
		return err
	}
	raw, err := rt.opts.Page.Evaluate(ctx, `JSON.stringify((function(){var p=window.__refreshmintPopups; window.__refreshmintPopups=[]; return p;})())`)
	if err != nil {
		return err
	}
	var urls []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return rmerrors.Wrap(rmerrors.KindDriverFault, "decode popup events", err)
	}
	for _, u := range urls {
		rt.popupEvents = append(rt.popupEvents, PopupEvent{URL: u.URL, At: time.Now()})
	}
	return nil
}

func jsQuote(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}
