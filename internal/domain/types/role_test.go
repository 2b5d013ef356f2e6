package types

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":      RoleAdmin,
		" Standard ": RoleStandard,
		"ADMIN":      RoleAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "root", "owner"} {
		if _, err := ParseRole(in); !errors.Is(err, ErrUnknownRole) {
			t.Fatalf("ParseRole(%q) err = %v, want ErrUnknownRole", in, err)
		}
	}
}

func TestTokenTypeBearer(t *testing.T) {
	if !TokenAccess.Bearer() || !TokenPersonal.Bearer() {
		t.Fatal("access and pat must be bearer tokens")
	}
	if TokenRefresh.Bearer() {
		t.Fatal("refresh token must not be accepted as bearer")
	}
	if TokenType("id").Valid() {
		t.Fatal("unexpected valid token type")
	}
}
