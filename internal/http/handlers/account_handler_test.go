package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

func TestRegisterVerifyLogin_Flow(t *testing.T) {
	a := newTestAPI(t)

	w := do(t, a.r, http.MethodPost, "/registrar", RegisterRequest{Name: "  Alice ", Email: " Alice@Example.com ", Password: "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	reg := decodeBody[RegisterResponse](t, w)
	if reg.Email != "alice@example.com" || reg.Message == "" {
		t.Fatalf("unexpected register body: %+v", reg)
	}

	p := decodeBody[domain.Profile](t, do(t, a.r, http.MethodGet, "/usuario?email=alice@example.com", nil))
	if p.Name != "Alice" || p.Verified {
		t.Fatalf("profile before verify: %+v", p)
	}

	// Unverified accounts may log in.
	w = do(t, a.r, http.MethodPost, "/login", LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}

	expectError(t, do(t, a.r, http.MethodPost, "/verificar", VerifyRequest{Email: "alice@example.com", Code: "000000"}),
		http.StatusBadRequest, ErrCodeInvalidCode)

	for i := 0; i < 2; i++ {
		w = do(t, a.r, http.MethodPost, "/verificar", VerifyRequest{Email: "alice@example.com", Code: "123456"})
		if w.Code != http.StatusOK {
			t.Fatalf("verify #%d: %d %s", i, w.Code, w.Body.String())
		}
		if m := decodeBody[MessageResponse](t, w); m.Message != "account verified" {
			t.Fatalf("verify body: %+v", m)
		}
	}

	p = decodeBody[domain.Profile](t, do(t, a.r, http.MethodPost, "/login", LoginRequest{Email: "ALICE@example.com", Password: "s3cret"}))
	if p.Email != "alice@example.com" || !p.Verified {
		t.Fatalf("login after verify: %+v", p)
	}
	if body := do(t, a.r, http.MethodPost, "/login", LoginRequest{Email: "alice@example.com", Password: "s3cret"}).Body.String(); strings.Contains(body, "password") || strings.Contains(body, "hash") {
		t.Fatalf("login leaked credentials: %s", body)
	}
}

func TestRegister_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "Bob", "bob@x.io")

	expectError(t, do(t, a.r, http.MethodPost, "/registrar", RegisterRequest{Name: "Bob2", Email: "BOB@x.io", Password: "x"}),
		http.StatusBadRequest, ErrCodeConflict)
	expectError(t, do(t, a.r, http.MethodPost, "/registrar", RegisterRequest{Name: "", Email: "c@x.io", Password: "x"}),
		http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(t, a.r, http.MethodPost, "/registrar", "{not json"),
		http.StatusBadRequest, ErrCodeBadRequest)
}

func TestLogin_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "Bob", "bob@x.io")

	expectError(t, do(t, a.r, http.MethodPost, "/login", LoginRequest{Email: "ghost@x.io", Password: "x"}),
		http.StatusBadRequest, ErrCodeNotFound)
	expectError(t, do(t, a.r, http.MethodPost, "/login", LoginRequest{Email: "bob@x.io", Password: "wrong"}),
		http.StatusBadRequest, ErrCodeInvalidCredentials)
}

func TestGetUser_NotFoundIs404(t *testing.T) {
	a := newTestAPI(t)

	er := expectError(t, do(t, a.r, http.MethodGet, "/usuario?email=ghost@x.io", nil), http.StatusNotFound, ErrCodeNotFound)
	if er.Error != "account not found" {
		t.Fatalf("error=%q", er.Error)
	}
	expectError(t, do(t, a.r, http.MethodGet, "/usuario?email=%20", nil), http.StatusBadRequest, ErrCodeBadRequest)
}
