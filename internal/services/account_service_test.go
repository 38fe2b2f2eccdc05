package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type sentMail struct{ name, email, code string }

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendVerification(_ context.Context, name, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{name, email, code})
	return m.err
}

func newAccountSvc(t *testing.T, db *gorm.DB, mailer *recordingMailer) *AccountService {
	t.Helper()
	s := NewAccountService(db, auth.NewHasher(bcrypt.MinCost), mailer)
	s.NewCode = func() (string, error) { return "012345", nil }
	return s
}

func mustRegister(t *testing.T, s *AccountService, name, email string) *domain.Account {
	t.Helper()
	a, err := s.Register(context.Background(), name, email, "pw-"+name)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return a
}

// ---------- Register ----------

func TestAccountService_Register_StoresHashCodeAndMails(t *testing.T) {
	db := newSvcDB(t)
	mailer := &recordingMailer{}
	s := newAccountSvc(t, db, mailer)
	before := testutil.ToFloat64(accountsRegistered)

	a, err := s.Register(context.Background(), "  Zoe \t Q ", "  Zoe@Example.COM ", "secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Email != "zoe@example.com" || a.Name != "Zoe Q" {
		t.Fatalf("expected normalized name/email, got %q %q", a.Name, a.Email)
	}
	if a.PasswordHash == "secret" || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("secret")) != nil {
		t.Fatalf("password was not stored as a bcrypt hash")
	}
	if a.Verified || a.VerificationCode == nil || *a.VerificationCode != "012345" {
		t.Fatalf("unexpected verification state: %+v", a)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != (sentMail{"Zoe Q", "zoe@example.com", "012345"}) {
		t.Fatalf("unexpected mails: %+v", mailer.sent)
	}
	if got := testutil.ToFloat64(accountsRegistered); got != before+1 {
		t.Fatalf("accounts counter = %v, want %v", got, before+1)
	}
}

func TestAccountService_Register_DuplicateEmail(t *testing.T) {
	db := newSvcDB(t)
	s := newAccountSvc(t, db, &recordingMailer{})
	mustRegister(t, s, "a", "dup@x.io")

	if _, err := s.Register(context.Background(), "b", "DUP@x.io", "pw"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAccountService_Register_MissingFields(t *testing.T) {
	s := newAccountSvc(t, newSvcDB(t), &recordingMailer{})
	cases := [][3]string{
		{"", "a@x.io", "pw"},
		{"n", "   ", "pw"},
		{"n", "a@x.io", ""},
	}
	for _, c := range cases {
		if _, err := s.Register(context.Background(), c[0], c[1], c[2]); !errors.Is(err, ErrMissingField) {
			t.Fatalf("Register%v: expected ErrMissingField, got %v", c, err)
		}
	}
}

func TestAccountService_Register_MailFailureIsSwallowed(t *testing.T) {
	db := newSvcDB(t)
	mailer := &recordingMailer{err: errors.New("smtp down")}
	s := newAccountSvc(t, db, mailer)
	before := testutil.ToFloat64(verificationMailFailures)

	a, err := s.Register(context.Background(), "n", "n@x.io", "pw")
	if err != nil || a == nil {
		t.Fatalf("registration must succeed despite mail failure, got %v", err)
	}
	if got := testutil.ToFloat64(verificationMailFailures); got != before+1 {
		t.Fatalf("mail failure counter = %v, want %v", got, before+1)
	}
}

func TestAccountService_Register_CodeGeneratorError(t *testing.T) {
	s := newAccountSvc(t, newSvcDB(t), &recordingMailer{})
	s.NewCode = func() (string, error) { return "", errors.New("entropy") }
	if _, err := s.Register(context.Background(), "n", "n@x.io", "pw"); err == nil {
		t.Fatalf("expected code generator error to surface")
	}
}

// ---------- Verify ----------

func TestAccountService_Verify(t *testing.T) {
	db := newSvcDB(t)
	s := newAccountSvc(t, db, &recordingMailer{})
	ctx := context.Background()
	mustRegister(t, s, "v", "v@x.io")

	if err := s.Verify(ctx, "v@x.io", "999999"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	p, _ := s.Profile(ctx, "v@x.io")
	if p.Verified {
		t.Fatalf("wrong code must leave account unverified")
	}

	if err := s.Verify(ctx, " V@x.io ", "012345"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	p, _ = s.Profile(ctx, "v@x.io")
	if !p.Verified {
		t.Fatalf("profile should reflect verification immediately")
	}

	// idempotent
	if err := s.Verify(ctx, "v@x.io", "012345"); err != nil {
		t.Fatalf("re-verify should succeed, got %v", err)
	}
	if err := s.Verify(ctx, "nobody@x.io", "012345"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("unknown email should be ErrInvalidCode, got %v", err)
	}
	if err := s.Verify(ctx, "v@x.io", " "); !errors.Is(err, ErrMissingField) {
		t.Fatalf("blank code should be ErrMissingField, got %v", err)
	}
}

// ---------- Login / Profile ----------

func TestAccountService_Login(t *testing.T) {
	db := newSvcDB(t)
	s := newAccountSvc(t, db, &recordingMailer{})
	ctx := context.Background()
	mustRegister(t, s, "lee", "lee@x.io")

	p, err := s.Login(ctx, "lee@x.io", "pw-lee")
	if err != nil {
		t.Fatalf("unverified login should succeed, got %v", err)
	}
	if p != (domain.Profile{Name: "lee", Email: "lee@x.io", Verified: false}) {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if _, err := s.Login(ctx, "lee@x.io", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := s.Login(ctx, "ghost@x.io", "pw"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountService_Profile_NotFound(t *testing.T) {
	s := newAccountSvc(t, newSvcDB(t), &recordingMailer{})
	if _, err := s.Profile(context.Background(), "ghost@x.io"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestNormalizeHelpers(t *testing.T) {
	if got := NormalizeEmail("  MiXeD@Case.IO "); got != "mixed@case.io" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
	// "e" + combining acute composes to a single rune under NFC.
	if got := normalizeName("José  Luis"); got != "José Luis" {
		t.Fatalf("normalizeName = %q", got)
	}
}
