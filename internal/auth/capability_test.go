package auth

import (
	"errors"
	"reflect"
	"testing"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name      string
		requester Principal
		owner     string
		override  []string
		wantErr   bool
	}{
		{name: "owner", requester: Principal{Username: "amy"}, owner: "amy"},
		{name: "stranger", requester: Principal{Username: "rory"}, owner: "amy", wantErr: true},
		{name: "admin override", requester: Principal{Username: "root", Roles: []string{"ADMIN"}}, owner: "amy", override: []string{RoleAdmin}},
		{name: "role without override", requester: Principal{Username: "root", Roles: []string{RoleAdmin}}, owner: "amy", wantErr: true},
		{name: "anonymous never owns", requester: Principal{}, owner: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.requester, tt.owner, tt.override...)
			if tt.wantErr {
				if !errors.Is(err, ErrForbidden) {
					t.Fatalf("Authorize err = %v, want %v", err, ErrForbidden)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize error: %v", err)
			}
		})
	}
}

func TestParseRoles(t *testing.T) {
	got := ParseRoles(" Doctor, ,admin ")
	want := []string{RoleDoctor, RoleAdmin}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseRoles = %v, want %v", got, want)
	}
	if ParseRoles("") != nil {
		t.Fatalf("ParseRoles(\"\") should be nil")
	}
}

func TestHeadersPrincipal(t *testing.T) {
	values := map[string]string{"X-User": " amy ", "X-Roles": "patient"}
	got := DefaultHeaders.Principal(func(k string) string { return values[k] })
	if got.Username != "amy" || !got.HasRole(RolePatient) {
		t.Fatalf("Principal = %+v", got)
	}

	custom := Headers{User: "X-Forwarded-User"}
	values = map[string]string{"X-Forwarded-User": "dr.who", "X-Roles": "doctor,admin"}
	got = custom.Principal(func(k string) string { return values[k] })
	if got.Username != "dr.who" || !got.HasRole(RoleAdmin) {
		t.Fatalf("Principal = %+v", got)
	}

	if !(Headers{}).Principal(func(string) string { return "" }).Anonymous() {
		t.Fatalf("expected anonymous principal")
	}
}
