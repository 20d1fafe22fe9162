//go:build js && wasm

// Command adminauth-wasm exposes the admin session store to the page as window.AuthManager,
// backed by localStorage and toggling the document's admin controls.
package main

import (
	"context"
	"syscall/js"

	"github.com/cameronmore/go-admin-sessions/auth"
	"github.com/cameronmore/go-admin-sessions/sessions"
	log "github.com/sirupsen/logrus"
)

func main() {
	storage, err := auth.NewLocalStorage()
	if err != nil {
		log.Errorf("admin auth disabled: %s", err)
		return
	}
	ac := auth.NewAuthContext(storage, auth.NewDocumentUI(), auth.DefaultSessionTTL)

	// seeds the accounts and settles the admin controls to the stored session
	ctx := context.Background()
	if err := ac.Init(ctx); err != nil {
		log.Errorf("init admin auth: %s", err)
	}

	manager := js.Global().Get("Object").New()
	manager.Set("checkLoginStatus", js.FuncOf(func(js.Value, []js.Value) any {
		status, err := ac.CheckLoginStatus(ctx)
		if err != nil {
			log.Errorf("check login status: %s", err)
		}
		return statusToJS(status)
	}))
	manager.Set("login", js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) < 2 {
			return map[string]any{"success": false, "message": sessions.InvalidCredentialsMessage}
		}
		result, err := ac.Login(ctx, args[0].String(), args[1].String())
		if err != nil {
			log.Errorf("login: %s", err)
			return map[string]any{"success": false, "message": err.Error()}
		}
		if !result.Success {
			return map[string]any{"success": false, "message": result.Message}
		}
		return map[string]any{"success": true, "user": accountToJS(*result.User), "token": result.Token}
	}))
	manager.Set("logout", js.FuncOf(func(js.Value, []js.Value) any {
		if err := ac.Logout(ctx); err != nil {
			log.Errorf("logout: %s", err)
		}
		return nil
	}))
	manager.Set("hasPermission", js.FuncOf(func(js.Value, []js.Value) any {
		ok, err := ac.HasPermission(ctx)
		if err != nil {
			log.Errorf("has permission: %s", err)
		}
		return ok
	}))
	manager.Set("validateToken", js.FuncOf(func(_ js.Value, args []js.Value) any {
		return len(args) > 0 && args[0].Type() == js.TypeString && ac.ValidateToken(args[0].String())
	}))
	manager.Set("generateToken", js.FuncOf(func(js.Value, []js.Value) any {
		return ac.GenerateToken()
	}))
	manager.Set("validateAdminAccount", js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) < 2 {
			return js.Undefined()
		}
		account, ok, err := ac.ValidateAdminAccount(ctx, args[0].String(), args[1].String())
		if err != nil {
			log.Errorf("validate admin account: %s", err)
		}
		if !ok {
			return js.Undefined()
		}
		return accountToJS(account)
	}))
	manager.Set("getAdminAccounts", js.FuncOf(func(js.Value, []js.Value) any {
		accounts, err := ac.GetAdminAccounts(ctx)
		if err != nil {
			log.Errorf("get admin accounts: %s", err)
		}
		out := make([]any, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, accountToJS(a))
		}
		return out
	}))
	manager.Set("initAdminAccounts", js.FuncOf(func(js.Value, []js.Value) any {
		if err := ac.InitAdminAccounts(ctx); err != nil {
			log.Errorf("init admin accounts: %s", err)
		}
		return nil
	}))
	js.Global().Set("AuthManager", manager)

	select {}
}

func accountToJS(a sessions.Account) map[string]any {
	var createdAt any = a.CreatedAt.String()
	if raw := a.CreatedAt.Raw(); raw != "" {
		createdAt = js.Global().Get("JSON").Call("parse", raw)
	}
	return map[string]any{
		"username":  a.Username,
		"password":  a.Password,
		"createdAt": createdAt,
	}
}

func statusToJS(status sessions.LoginStatus) map[string]any {
	if !status.IsLoggedIn {
		return map[string]any{"isLoggedIn": false, "user": nil, "token": nil}
	}
	return map[string]any{"isLoggedIn": true, "user": accountToJS(*status.User), "token": *status.Token}
}
