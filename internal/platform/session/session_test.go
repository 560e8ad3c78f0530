package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNewDecodesClaims(t *testing.T) {
	token := signedToken(t, Claims{
		UserID: "u-1",
		Name:   "Priya",
		Role:   "Employee",
		Band:   "B2",
		Stream: "Platform",
	})
	s, err := New(token, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if s.Claims().UserID != "u-1" || s.Claims().Role != "Employee" {
		t.Fatalf("unexpected claims: %+v", s.Claims())
	}
	p := s.Profile()
	if p.Band != "B2" || p.Stream != "Platform" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestNewRejectsGarbage(t *testing.T) {
	if _, err := New("not-a-token", nil); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestExpireFiresOnceAndCancels(t *testing.T) {
	fired := 0
	s, err := New(signedToken(t, Claims{UserID: "u-1"}), func() { fired++ })
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.Expire()
	s.Expire()
	if fired != 1 {
		t.Fatalf("expected callback once, got %d", fired)
	}
	if !s.Expired() {
		t.Fatal("expected expired")
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("expected session context cancelled")
	}
}

func TestAdapterByRole(t *testing.T) {
	emp, err := New(signedToken(t, Claims{Role: "Employee", Band: "B2"}), nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer emp.Close()
	mgr, err := New(signedToken(t, Claims{Role: "Manager", Band: "B4"}), nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer mgr.Close()

	if emp.Adapter().Role() != "employee" {
		t.Fatalf("unexpected employee adapter role: %s", emp.Adapter().Role())
	}
	if mgr.Adapter().Role() != "manager_self" {
		t.Fatalf("unexpected manager adapter role: %s", mgr.Adapter().Role())
	}
	if mgr.Adapter().Profile().Band != "B4" {
		t.Fatal("manager-self adapter must use the manager's own profile")
	}
}
