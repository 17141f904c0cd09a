package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/micro-nova/codecd/internal/auth"
)

// writeKeysJSON writes keys.json to dir.
func writeKeysJSON(t *testing.T, dir string, keys map[string]auth.Key) {
	t.Helper()
	data, err := json.Marshal(keys)
	if err != nil {
		t.Fatalf("json.Marshal keys: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keys.json"), data, 0644); err != nil {
		t.Fatalf("WriteFile keys.json: %v", err)
	}
}

func newService(t *testing.T, dir string) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(dir)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// --- Open mode (no keys.json) ---

func TestService_OpenMode(t *testing.T) {
	svc := newService(t, t.TempDir())

	if !svc.IsOpenMode() {
		t.Error("IsOpenMode() = false, want true when no keys.json")
	}
	if svc.VerifyKey("") {
		t.Error("VerifyKey(\"\") = true, want false (empty key always rejected)")
	}
	if svc.VerifyKey("any-key-at-all") {
		t.Error("VerifyKey(\"any-key\") = true with no keys, want false")
	}
}

func TestMiddleware_OpenMode_PassesThrough(t *testing.T) {
	svc := newService(t, t.TempDir())

	called := false
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/streams/playback/start", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Error("middleware in open mode did not call next handler")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("response code = %d, want 200", rr.Code)
	}
}

// --- Secured mode ---

func newSecuredService(t *testing.T) *auth.Service {
	t.Helper()
	dir := t.TempDir()
	writeKeysJSON(t, dir, map[string]auth.Key{
		"bringup": {Key: "control-key", Role: auth.RoleControl},
		"monitor": {Key: "read-key", Role: auth.RoleRead},
		"legacy":  {Key: "no-role-key"},
	})
	return newService(t, dir)
}

func TestService_SecuredMode_Roles(t *testing.T) {
	svc := newSecuredService(t)
	if svc.IsOpenMode() {
		t.Fatal("IsOpenMode() = true with keys configured")
	}
	tests := []struct {
		key, want string
	}{
		{"control-key", auth.RoleControl},
		{"read-key", auth.RoleRead},
		{"no-role-key", auth.RoleRead},
		{"wrong-key", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := svc.Role(tt.key); got != tt.want {
			t.Errorf("Role(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestMiddleware_SecuredMode(t *testing.T) {
	svc := newSecuredService(t)
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		header string
		query  string
		want   int
	}{
		{"no credentials", http.MethodGet, "", "", http.StatusUnauthorized},
		{"wrong header", http.MethodGet, "wrong-key", "", http.StatusUnauthorized},
		{"read via header", http.MethodGet, "read-key", "", http.StatusOK},
		{"read via query", http.MethodGet, "", "read-key", http.StatusOK},
		{"read key cannot post", http.MethodPost, "read-key", "", http.StatusForbidden},
		{"control key posts", http.MethodPost, "control-key", "", http.StatusOK},
		{"control via query", http.MethodPut, "", "control-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/status"
			if tt.query != "" {
				target += "?api-key=" + tt.query
			}
			req := httptest.NewRequest(tt.method, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want >= 400 {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body["message"] == "" {
					t.Errorf("error body = %v, %v", body, err)
				}
			}
		})
	}
}

func TestService_Reload(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, dir)

	if !svc.IsOpenMode() {
		t.Error("initially expected open mode")
	}

	writeKeysJSON(t, dir, map[string]auth.Key{
		"admin": {Key: "reload-test-key", Role: auth.RoleControl},
	})
	if err := svc.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if svc.IsOpenMode() {
		t.Error("expected secured mode after reload")
	}
	if !svc.VerifyKey("reload-test-key") {
		t.Error("VerifyKey after reload returned false for correct key")
	}
}

func TestService_WatchesKeysFile(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, dir)

	writeKeysJSON(t, dir, map[string]auth.Key{
		"admin": {Key: "watched-key", Role: auth.RoleControl},
	})
	deadline := time.Now().Add(2 * time.Second)
	for !svc.VerifyKey("watched-key") {
		if time.Now().After(deadline) {
			t.Fatal("keys.json change was not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := os.Remove(filepath.Join(dir, "keys.json")); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for !svc.IsOpenMode() {
		if time.Now().After(deadline) {
			t.Fatal("removing keys.json did not return to open mode")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestService_BadRole(t *testing.T) {
	dir := t.TempDir()
	writeKeysJSON(t, dir, map[string]auth.Key{
		"x": {Key: "k", Role: "root"},
	})
	if _, err := auth.NewService(dir); err == nil {
		t.Error("NewService accepted an unknown role")
	}
}

func TestService_MissingConfigDir_NoError(t *testing.T) {
	// A non-existent directory means no keys.json, which is open mode.
	nonExistent := filepath.Join(t.TempDir(), "does-not-exist")

	svc := newService(t, nonExistent)
	if !svc.IsOpenMode() {
		t.Error("expected open mode for non-existent config dir")
	}
}
