package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeps() Deps {
	pass := func(c *gin.Context) { c.Next() }
	return Deps{
		Config:       &config.Config{},
		Logger:       zap.NewNop(),
		System:       handler.NewSystemHandler(nil, nil),
		Authenticate: pass,
		TenantScope:  pass,
	}
}

func TestNew_RegistersHealthRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New(testDeps())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_RejectsUnknownJSONFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = New(testDeps())

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"email":"a@b.test","surprise":true}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var body struct {
		Email string `json:"email"`
	}
	err := c.ShouldBindJSON(&body)
	require.Error(t, err, "fields outside the DTO must be rejected, not dropped")
	assert.Contains(t, err.Error(), "surprise")
}
