package auth

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/bento/internal/model"
)

func TestDecodeClaims_ResourceAndRealmRolesMerged(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "alice",
		"resource_access": map[string]interface{}{
			"ims":     map[string]interface{}{"roles": []interface{}{"role_admin", "role_employee"}},
			"account": map[string]interface{}{"roles": []interface{}{"manage-account"}},
		},
		"realm_access": map[string]interface{}{"roles": []interface{}{"offline_access", "role_admin"}},
	})

	c, err := DecodeClaims(tok, "ims")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Username != "alice" {
		t.Errorf("Username = %q, want %q", c.Username, "alice")
	}
	if c.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", c.Subject, "user-1")
	}
	want := []string{"role_admin", "role_employee", "offline_access"}
	if len(c.Roles) != len(want) {
		t.Fatalf("Roles = %v, want %v", c.Roles, want)
	}
	for i := range want {
		if c.Roles[i] != want[i] {
			t.Errorf("Roles[%d] = %q, want %q", i, c.Roles[i], want[i])
		}
	}
}

func TestDecodeClaims_OtherClientRolesIgnored(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"resource_access": map[string]interface{}{
			"account": map[string]interface{}{"roles": []interface{}{"manage-account"}},
		},
	})

	c, err := DecodeClaims(tok, "ims")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Roles) != 0 {
		t.Errorf("Roles = %v, want empty", c.Roles)
	}
}

func TestDecodeClaims_MissingRoleClaim_EmptyRoles(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"preferred_username": "bob"})

	c, err := DecodeClaims(tok, "ims")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Roles) != 0 {
		t.Errorf("Roles = %v, want empty", c.Roles)
	}
}

func TestDecodeClaims_Malformed_ReturnsDecodeFailed(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		c, err := DecodeClaims(tok, "ims")
		if !errors.Is(err, model.ErrDecodeFailed) {
			t.Errorf("DecodeClaims(%q) error = %v, want ErrDecodeFailed", tok, err)
		}
		if len(c.Roles) != 0 || c.Username != "" {
			t.Errorf("DecodeClaims(%q) = %+v, want zero claims", tok, c)
		}
	}
}
