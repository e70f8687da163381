package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/auth"
	"github.com/uncord-chat/uncord-server/internal/config"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// testTimeout extends the default app.Test() deadline so that argon2 hashing under the race detector does not trigger
// spurious failures.
var testTimeout = fiber.TestConfig{Timeout: 30 * time.Second}

// testAuthConfig returns a config with fast argon2 parameters for handler tests.
func testAuthConfig() *config.Config {
	return &config.Config{
		Application: config.Application{
			JWTSecret: "test-secret-for-defaults-minimum-32",
		},
		Argon2Memory:      8192,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
		Argon2SaltLength:  16,
		Argon2KeyLength:   32,
		JWTAccessTTL:      15 * time.Minute,
	}
}

// fakeUserRepo implements user.Repository in memory.
type fakeUserRepo struct {
	users map[uuid.UUID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*user.User)}
}

func (r *fakeUserRepo) add(username, email, passwordHash string) *user.User {
	u := &user.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeUserRepo) Create(_ context.Context, params user.CreateParams) (*user.User, error) {
	for _, existing := range r.users {
		if existing.Email == params.Email || existing.Username == params.Username {
			return nil, user.ErrAlreadyExists
		}
	}
	return r.add(params.Username, params.Email, params.PasswordHash), nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

// --- response parsing helpers ---

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return b
}

func parseError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal error response %q: %v", string(body), err)
	}
	return env
}

func parseSuccess(t *testing.T, body []byte) successEnvelope {
	t.Helper()
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal success response %q: %v", string(body), err)
	}
	return env
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// doReq sends a request through app.Test with the extended test timeout.
func doReq(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func testAuthApp(repo *fakeUserRepo) *fiber.App {
	handler := NewAuthHandler(auth.NewService(repo, testAuthConfig(), zerolog.Nop()), zerolog.Nop())

	app := fiber.New()
	app.Post("/register", handler.Register)
	app.Post("/login", handler.Login)
	return app
}

// --- Register tests ---

func TestRegister_Success(t *testing.T) {
	t.Parallel()
	repo := newFakeUserRepo()
	app := testAuthApp(repo)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register",
		`{"username":"alice","email":"alice@example.com","password":"password123"}`))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, fiber.StatusCreated, body)
	}

	env := parseSuccess(t, body)
	var view struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("unmarshal user view: %v", err)
	}
	if view.Username != "alice" {
		t.Errorf("username = %q, want %q", view.Username, "alice")
	}
	if strings.Contains(string(env.Data), "email") || strings.Contains(string(env.Data), "password") {
		t.Errorf("user view leaks credentials: %s", env.Data)
	}
	if len(repo.users) != 1 {
		t.Errorf("stored users = %d, want 1", len(repo.users))
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"username too short", `{"username":"ab","email":"a@example.com","password":"password123"}`},
		{"username too long", `{"username":"` + strings.Repeat("a", 33) + `","email":"a@example.com","password":"password123"}`},
		{"invalid email", `{"username":"alice","email":"not-an-email","password":"password123"}`},
		{"password too short", `{"username":"alice","email":"a@example.com","password":"short"}`},
		{"password too long", `{"username":"alice","email":"a@example.com","password":"` + strings.Repeat("p", 65) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := testAuthApp(newFakeUserRepo())

			resp := doReq(t, app, jsonReq(http.MethodPost, "/register", tt.body))
			body := readBody(t, resp)

			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, fiber.StatusBadRequest, body)
			}
			env := parseError(t, body)
			if env.Error.Code != string(apierrors.ValidationError) {
				t.Errorf("error code = %q, want %q", env.Error.Code, apierrors.ValidationError)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	repo := newFakeUserRepo()
	app := testAuthApp(repo)

	const body = `{"username":"alice","email":"alice@example.com","password":"password123"}`
	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", body))
	_ = readBody(t, resp)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("first register status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}

	resp = doReq(t, app, jsonReq(http.MethodPost, "/register", body))
	_ = readBody(t, resp)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("second register status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

// --- Login tests ---

func TestLogin_SuccessReturnsValidToken(t *testing.T) {
	t.Parallel()
	cfg := testAuthConfig()
	repo := newFakeUserRepo()
	app := testAuthApp(repo)

	hash, err := auth.HashPassword("password123",
		cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism, cfg.Argon2SaltLength, cfg.Argon2KeyLength)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := repo.add("alice", "alice@example.com", hash)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/login",
		`{"email":"alice@example.com","password":"password123"}`))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, fiber.StatusOK, body)
	}

	env := parseSuccess(t, body)
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}

	claims, err := auth.ValidateAccessToken(login.Token, cfg.Application.JWTSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Sub != u.ID.String() {
		t.Errorf("token subject = %q, want %q", claims.Sub, u.ID)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()
	cfg := testAuthConfig()
	repo := newFakeUserRepo()
	app := testAuthApp(repo)

	hash, err := auth.HashPassword("password123",
		cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism, cfg.Argon2SaltLength, cfg.Argon2KeyLength)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	repo.add("alice", "alice@example.com", hash)

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"email":"alice@example.com","password":"wrong-password"}`},
		{"unknown email", `{"email":"nobody@example.com","password":"password123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := doReq(t, app, jsonReq(http.MethodPost, "/login", tt.body))
			body := readBody(t, resp)

			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
			}
			env := parseError(t, body)
			if env.Error.Code != string(apierrors.Unauthorized) {
				t.Errorf("error code = %q, want %q", env.Error.Code, apierrors.Unauthorized)
			}
		})
	}
}
