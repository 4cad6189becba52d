package auth

import "strings"

// Headers names the request headers an upstream gateway uses to assert who
// is calling. gRPC metadata uses the same names lowercased.
type Headers struct {
	User  string
	Roles string
}

var DefaultHeaders = Headers{User: "X-User", Roles: "X-Roles"}

// Principal reads the caller from a header lookup such as http.Header.Get.
func (h Headers) Principal(get func(key string) string) Principal {
	h = h.withDefaults()
	return Principal{
		Username: strings.TrimSpace(get(h.User)),
		Roles:    ParseRoles(get(h.Roles)),
	}
}

func (h Headers) withDefaults() Headers {
	if strings.TrimSpace(h.User) == "" {
		h.User = DefaultHeaders.User
	}
	if strings.TrimSpace(h.Roles) == "" {
		h.Roles = DefaultHeaders.Roles
	}
	return h
}
