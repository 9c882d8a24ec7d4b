package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

// doJSON fires one JSON request at the test server and returns the decoded
// status plus raw body.
func doJSON(t *testing.T, env *testEnv, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, env.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, data
}

func TestRegisterLoginMe(t *testing.T) {
	env := startTestEnv(t)

	status, body := doJSON(t, env, http.MethodPost, "/api/register", "", RegisterRequest{
		Username:   "alice",
		Password:   "password123",
		Role:       "teacher",
		Department: "cs",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", status, body)
	}
	var created AuthResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if created.Token == "" {
		t.Fatalf("expected a token on registration")
	}

	// Duplicate username.
	status, _ = doJSON(t, env, http.MethodPost, "/api/register", "", RegisterRequest{
		Username:   "alice",
		Password:   "password123",
		Role:       "student",
		Department: "cs",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", status)
	}

	// Unknown role is rejected by binding before it reaches the service.
	status, _ = doJSON(t, env, http.MethodPost, "/api/register", "", map[string]string{
		"username":   "mallory",
		"password":   "password123",
		"role":       "dean",
		"department": "cs",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad role register: expected 400, got %d", status)
	}

	status, _ = doJSON(t, env, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", status)
	}

	status, body = doJSON(t, env, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "password123",
	})
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", status, body)
	}
	var logged AuthResponse
	if err := json.Unmarshal(body, &logged); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}

	status, body = doJSON(t, env, http.MethodGet, "/api/me", logged.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", status, body)
	}
	var me MeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me response: %v", err)
	}
	if me.Username != "alice" || me.Role != "teacher" || me.Department != "cs" {
		t.Fatalf("unexpected identity: %+v", me)
	}

	status, _ = doJSON(t, env, http.MethodGet, "/api/me", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("me without token: expected 401, got %d", status)
	}
}

func TestSuspendedAccountIsLockedOut(t *testing.T) {
	env := startTestEnv(t)

	token, userID := env.register(t, "bob", "student", "cs")

	if err := env.store.SetUserActive(context.Background(), userID, false); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	status, _ := doJSON(t, env, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "bob",
		Password: "password123",
	})
	if status != http.StatusForbidden {
		t.Fatalf("suspended login: expected 403, got %d", status)
	}

	// Tokens issued before the suspension die with it.
	status, _ = doJSON(t, env, http.MethodGet, "/api/me", token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("suspended me: expected 403, got %d", status)
	}
}
