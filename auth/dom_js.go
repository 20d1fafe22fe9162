//go:build js && wasm

package auth

import (
	"syscall/js"

	"github.com/cameronmore/go-admin-sessions/sessions"
)

var _ sessions.UI = (*DocumentUI)(nil)

// Toggles the admin controls of the current document.
type DocumentUI struct {
	document js.Value
}

func NewDocumentUI() *DocumentUI {
	return &DocumentUI{document: js.Global().Get("document")}
}

func (d *DocumentUI) Update(isLoggedIn bool) {
	if !d.document.Truthy() {
		return
	}
	display := sessions.AdminDisplay(isLoggedIn)

	adminElements := d.document.Call("querySelectorAll", ".admin-only")
	for i := 0; i < adminElements.Length(); i++ {
		adminElements.Index(i).Get("style").Set("display", display)
	}

	if loginBtn := d.document.Call("getElementById", "adminLoginBtn"); loginBtn.Truthy() {
		loginBtn.Set("textContent", sessions.ButtonLabel(isLoggedIn))
	}

	if manageBtn := d.document.Call("getElementById", "adminManageBtn"); manageBtn.Truthy() {
		manageBtn.Get("style").Set("display", display)
	}
}
