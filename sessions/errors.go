package sessions

import "errors"

var ErrInvalidTokenLength = errors.New("The session token does not have the expected length")

var ErrUsernameRequired = errors.New("A username is required")

var ErrPasswordRequired = errors.New("A password is required")

var ErrUsernameExists = errors.New("An account with that username already exists")

// InvalidCredentialsMessage is returned to the caller of a failed login. It does not tell an
// unknown username apart from a wrong password.
const InvalidCredentialsMessage = "账号或密码错误"
