package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKey_NoKey_PassThrough(t *testing.T) {
	h := APIKey("", "")(okHandler)
	if code := serve(h, "", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_ValidKey(t *testing.T) {
	h := APIKey("x-confwatch-key", "secret")(okHandler)
	if code := serve(h, "X-Confwatch-Key", "secret"); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_DefaultHeader(t *testing.T) {
	h := APIKey("", "secret")(okHandler)
	if code := serve(h, "x-api-key", "secret"); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_Rejections(t *testing.T) {
	h := APIKey("", "secret")(okHandler)
	tests := []struct {
		name, header, value string
	}{
		{"missing", "", ""},
		{"empty", DefaultHeader, ""},
		{"wrong", DefaultHeader, "nope"},
		{"other header", "Authorization", "secret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code := serve(h, tc.header, tc.value); code != http.StatusUnauthorized {
				t.Errorf("status: got %d, want 401", code)
			}
		})
	}
}
