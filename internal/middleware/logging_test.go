package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/shiftboard/internal/logging"
)

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusConflict, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		handler := RequestLogger(logging.New(&buf, "debug", "text"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest("POST", "/api/tasks/3/complete", nil)
		req.Header.Set(HeaderTenantID, "2")
		req.Header.Set(HeaderUserID, "10")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		line := buf.String()
		if !strings.Contains(line, tt.level) {
			t.Errorf("status %d: log %q missing %s", tt.status, line, tt.level)
		}
		if !strings.Contains(line, "tenant_id=2") || !strings.Contains(line, "user_id=10") {
			t.Errorf("log %q missing identity", line)
		}
	}
}
