package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func perform(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouterMountsUnderVersionPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := NewDomainGroup("donations", "/donations")
	group.GET("/ping", ok)

	NewRouter(engine).Register(group).Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/donations/ping").Code)
	assert.Equal(t, http.StatusNotFound, perform(engine, http.MethodGet, "/donations/ping").Code)
}

func TestRouterCustomVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := NewDomainGroup("donations", "/donations")
	group.GET("/ping", ok)

	NewRouter(engine, WithAPIVersion("v2")).Register(group).Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v2/donations/ping").Code)
}

func TestDomainGroupSubgroups(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := NewDomainGroup("compliance", "/compliance")
	sub := group.Group("records", "/records")
	sub.GET("", ok)

	NewRouter(engine).Register(group).Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/compliance/records").Code)
}

func TestDomainGroupMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := NewDomainGroup("guarded", "/guarded")
	group.Use(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusForbidden)
	})
	group.GET("/ping", ok)

	open := NewDomainGroup("open", "/open")
	open.GET("/ping", ok)

	NewRouter(engine).Register(group).Register(open).Setup()

	assert.Equal(t, http.StatusForbidden, perform(engine, http.MethodGet, "/api/v1/guarded/ping").Code)
	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/open/ping").Code)
}

func TestRouterMiddlewareAppliesToAllGroups(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	group := NewDomainGroup("donations", "/donations")
	group.GET("/ping", ok)

	NewRouter(engine).
		Use(func(c *gin.Context) {
			c.Header("X-Stamped", "yes")
			c.Next()
		}).
		Register(group).
		Setup()

	w := perform(engine, http.MethodGet, "/api/v1/donations/ping")
	assert.Equal(t, "yes", w.Header().Get("X-Stamped"))
}
