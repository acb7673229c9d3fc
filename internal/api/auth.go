package api

import (
	"crypto/subtle"
	"net/http"
)

// Authorizer decides whether a request may use the API.
// Returns: allow flag, or error when the check itself failed.
type Authorizer interface {
	Authorize(request *http.Request) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(request *http.Request) (bool, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(request *http.Request) (bool, error) {
	return f(request)
}

// AllowAll accepts every request.
type AllowAll struct{}

// Authorize always allows.
func (AllowAll) Authorize(*http.Request) (bool, error) {
	return true, nil
}

// BasicAuthorizer checks HTTP basic credentials against a fixed user table.
type BasicAuthorizer struct {
	users map[string]string
}

// NewBasicAuthorizer creates basic-auth authorizer.
// Params: username to password map.
func NewBasicAuthorizer(users map[string]string) *BasicAuthorizer {
	copied := make(map[string]string, len(users))
	for user, password := range users {
		copied[user] = password
	}
	return &BasicAuthorizer{users: copied}
}

// Authorize compares request credentials in constant time.
func (a *BasicAuthorizer) Authorize(request *http.Request) (bool, error) {
	user, password, ok := request.BasicAuth()
	if !ok {
		return false, nil
	}
	expected, known := a.users[user]
	if !known {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1, nil
}
