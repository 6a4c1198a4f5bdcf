package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Middleware(), func(c *gin.Context) {
		id, ok := UserIDFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})
	return r
}

func TestMiddlewareIdentity(t *testing.T) {
	r := newRouter()
	cases := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "header", target: "/whoami", header: "alice", status: http.StatusOK, body: "alice"},
		{name: "query", target: "/whoami?user_id=bob", status: http.StatusOK, body: "bob"},
		{name: "header wins", target: "/whoami?user_id=bob", header: "alice", status: http.StatusOK, body: "alice"},
		{name: "blank", target: "/whoami?user_id=%20", header: "  ", status: http.StatusUnauthorized, body: `{"error":"user id required"}`},
		{name: "missing", target: "/whoami", status: http.StatusUnauthorized, body: `{"error":"user id required"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(UserHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestUserIDFromContextWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := UserIDFromContext(c)
	assert.False(t, ok)
}
