package auth

import (
	"errors"
	"strings"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

var ErrForbidden = errors.New("forbidden")

// Principal is the caller as asserted by the upstream gateway. The service
// trusts it and never checks credentials itself.
type Principal struct {
	Username string
	Roles    []string
}

func (p Principal) Anonymous() bool {
	return strings.TrimSpace(p.Username) == ""
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Authorize allows the requester when it is the owner of the resource or holds
// one of overrideRoles. An anonymous requester owns nothing.
func Authorize(requester Principal, ownerUsername string, overrideRoles ...string) error {
	if !requester.Anonymous() && requester.Username == ownerUsername {
		return nil
	}
	for _, role := range overrideRoles {
		if requester.HasRole(role) {
			return nil
		}
	}
	return ErrForbidden
}

// ParseRoles splits a comma separated roles header value.
func ParseRoles(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
