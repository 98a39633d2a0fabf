package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParse(t *testing.T) {
	iss := NewIssuer("secret", "rollbook", time.Hour)

	tok, err := iss.Issue("teacher-1", "t@school.test")
	require.NoError(t, err)

	claims, err := iss.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.Subject)
	assert.Equal(t, "t@school.test", claims.Email)
	assert.Equal(t, "rollbook", claims.Issuer)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("secret", "rollbook", time.Hour)
	tok, err := iss.Issue("teacher-1", "t@school.test")
	require.NoError(t, err)

	expired := NewIssuer("secret", "rollbook", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	oldTok, err := expired.Issue("teacher-1", "t@school.test")
	require.NoError(t, err)

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{name: "garbage", issuer: iss, token: "not-a-jwt"},
		{name: "wrong key", issuer: NewIssuer("other", "rollbook", time.Hour), token: tok.AccessToken},
		{name: "wrong issuer", issuer: NewIssuer("secret", "someone-else", time.Hour), token: tok.AccessToken},
		{name: "expired", issuer: iss, token: oldTok.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Parse(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestOwnerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("secret", "rollbook", time.Hour)
	tok, err := iss.Issue("teacher-1", "t@school.test")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", OwnerAuth(iss), func(c *gin.Context) {
		c.String(http.StatusOK, OwnerID(c))
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", wantStatus: http.StatusForbidden},
		{name: "valid", header: "Bearer " + tok.AccessToken, wantStatus: http.StatusOK, wantBody: "teacher-1"},
		{name: "lowercase scheme", header: "bearer " + tok.AccessToken, wantStatus: http.StatusOK, wantBody: "teacher-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
