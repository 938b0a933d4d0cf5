package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"picture-backend/internal/shared/telemetry"
)

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Cleanup(telemetry.SetOutput(io.Discard))

	tests := []struct {
		name      string
		token     string
		allowOpen bool
		header    string
		want      int
	}{
		{name: "open when unset in dev", token: "", allowOpen: true, want: http.StatusOK},
		{name: "closed when unset elsewhere", token: "", want: http.StatusServiceUnavailable},
		{name: "closed when unset even with a header", token: "", header: "Bearer anything", want: http.StatusServiceUnavailable},
		{name: "missing header", token: "s3cret", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "s3cret", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", token: "s3cret", allowOpen: true, header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", token: "s3cret", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/admin", AdminAuth(tt.token, tt.allowOpen), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}
