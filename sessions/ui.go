package sessions

// Labels of the admin login button in the logged in and logged out states.
const (
	LogoutButtonLabel = "退出登录"
	LoginButtonLabel  = "管理员登录"
)

// UI is notified whenever the login state is entered or left. Implementations toggle
// the visibility of admin-only elements based solely on the boolean.
type UI interface {
	Update(isLoggedIn bool)
}

// Adapts a plain function to the UI interface.
type UIFunc func(isLoggedIn bool)

func (f UIFunc) Update(isLoggedIn bool) {
	f(isLoggedIn)
}

// A UI that ignores every update, used when nothing renders the login state.
type NopUI struct{}

func (NopUI) Update(bool) {}

// Returns the login button label for the given state.
func ButtonLabel(isLoggedIn bool) string {
	if isLoggedIn {
		return LogoutButtonLabel
	}
	return LoginButtonLabel
}

// Returns the CSS display value of admin-only elements for the given state.
func AdminDisplay(isLoggedIn bool) string {
	if isLoggedIn {
		return "inline-block"
	}
	return "none"
}
