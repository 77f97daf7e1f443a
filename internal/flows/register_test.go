package flows

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errMismatch      = errors.New("mismatch")
	errUsernameTaken = errors.New("username taken")
	errEmailTaken    = errors.New("email taken")
	errRegFailed     = errors.New("registration failed")
	errBadRequest    = errors.New("bad request")
)

type registerHarness struct {
	usernames  map[string]bool
	emails     map[string]bool
	storeCalls int
	hashCalls  int
	insertID   int64
	inserted   []NewUserRecord
}

func newRegisterHarness() *registerHarness {
	return &registerHarness{
		usernames: map[string]bool{"taken": true},
		emails:    map[string]bool{"taken@example.com": true},
		insertID:  1,
	}
}

func (h *registerHarness) deps() RegisterDeps {
	return RegisterDeps{
		Now: func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
		FindByUsername: func(_ context.Context, name string) error {
			h.storeCalls++
			if h.usernames[name] {
				return nil
			}
			return errNotFound
		},
		FindByEmail: func(_ context.Context, email string) error {
			h.storeCalls++
			if h.emails[email] {
				return nil
			}
			return errNotFound
		},
		Insert: func(_ context.Context, u NewUserRecord) (int64, error) {
			h.storeCalls++
			h.inserted = append(h.inserted, u)
			return h.insertID, nil
		},
		Hash: func(string) ([]byte, []byte, error) {
			h.hashCalls++
			return []byte("h"), []byte("s"), nil
		},
		ResolveRoles: func([]string) []string { return []string{"User"} },
		Errors: RegisterErrors{
			EngineNotReady:     errNotReady,
			InvalidRequest:     errBadRequest,
			PasswordMismatch:   errMismatch,
			UsernameTaken:      errUsernameTaken,
			EmailTaken:         errEmailTaken,
			RegistrationFailed: errRegFailed,
			UserNotFound:       errNotFound,
		},
	}
}

func validInput() RegisterInput {
	return RegisterInput{Username: "alice", Email: "alice@example.com", Password: "pw", ConfirmPassword: "pw"}
}

func TestRunRegisterSuccess(t *testing.T) {
	h := newRegisterHarness()
	id, err := RunRegister(context.Background(), validInput(), h.deps())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id != 1 || len(h.inserted) != 1 {
		t.Fatalf("expected one insert with id 1, got id=%d inserts=%d", id, len(h.inserted))
	}
	u := h.inserted[0]
	if !u.IsActive || u.CreatedAt.IsZero() || len(u.Roles) != 1 || u.Roles[0] != "User" {
		t.Fatalf("unexpected inserted record %+v", u)
	}
}

func TestRunRegisterMismatchTouchesNothing(t *testing.T) {
	h := newRegisterHarness()
	in := validInput()
	in.ConfirmPassword = "other"
	_, err := RunRegister(context.Background(), in, h.deps())
	if !errors.Is(err, errMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if h.storeCalls != 0 || h.hashCalls != 0 {
		t.Fatalf("expected no store or hash calls, got %d/%d", h.storeCalls, h.hashCalls)
	}
}

func TestRunRegisterDuplicateChecksInOrder(t *testing.T) {
	h := newRegisterHarness()
	in := validInput()
	in.Username = "taken"
	in.Email = "taken@example.com"
	if _, err := RunRegister(context.Background(), in, h.deps()); !errors.Is(err, errUsernameTaken) {
		t.Fatalf("expected username taken first, got %v", err)
	}

	h = newRegisterHarness()
	in = validInput()
	in.Email = "taken@example.com"
	if _, err := RunRegister(context.Background(), in, h.deps()); !errors.Is(err, errEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
	if h.hashCalls != 0 || len(h.inserted) != 0 {
		t.Fatal("expected no hash or insert after duplicate")
	}
}

func TestRunRegisterNonPositiveIDFails(t *testing.T) {
	h := newRegisterHarness()
	h.insertID = 0
	if _, err := RunRegister(context.Background(), validInput(), h.deps()); !errors.Is(err, errRegFailed) {
		t.Fatalf("expected registration failed, got %v", err)
	}
}

func TestRunRegisterMissingFields(t *testing.T) {
	h := newRegisterHarness()
	in := validInput()
	in.Email = "  "
	if _, err := RunRegister(context.Background(), in, h.deps()); !errors.Is(err, errBadRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if h.storeCalls != 0 {
		t.Fatal("expected no store calls for missing fields")
	}
}

func TestRunRegisterInsertConflictMapsToTaken(t *testing.T) {
	h := newRegisterHarness()
	deps := h.deps()
	deps.Insert = func(context.Context, NewUserRecord) (int64, error) { return 0, errUsernameTaken }
	if _, err := RunRegister(context.Background(), validInput(), deps); !errors.Is(err, errUsernameTaken) {
		t.Fatalf("expected username taken from insert race, got %v", err)
	}
}
