package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
)

const testToken = "tok-123"

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Query  string
	Body   map[string]interface{}
}

// fakeBackend is an in-process user API. failures queues status codes
// returned before the real handler runs.
type fakeBackend struct {
	t *testing.T

	mu       sync.Mutex
	users    map[string]map[string]interface{}
	order    []string
	requests []recordedRequest
	failures []int
	server   *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &fakeBackend{t: t, users: map[string]map[string]interface{}{}}
	r := gin.New()
	r.Use(b.record, b.fail)

	authed := r.Group("/", b.auth)
	authed.GET("/users", b.list)
	authed.GET("/users/:id", b.get)
	authed.PATCH("/users/:id", b.patch)
	authed.DELETE("/users/:id", b.delete)
	authed.POST("/change-password", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/login", b.login)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) add(id string, fields map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fields["id"] = id
	b.users[id] = fields
	b.order = append(b.order, id)
}

func (b *fakeBackend) failNext(statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, statuses...)
}

func (b *fakeBackend) recorded() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func (b *fakeBackend) record(c *gin.Context) {
	req := recordedRequest{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Auth:   c.GetHeader("Authorization"),
		Query:  c.Request.URL.RawQuery,
	}
	if c.Request.ContentLength > 0 {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err == nil {
			req.Body = body
			c.Set("body", body)
		}
	}
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	c.Next()
}

func (b *fakeBackend) fail(c *gin.Context) {
	b.mu.Lock()
	var status int
	if len(b.failures) > 0 {
		status, b.failures = b.failures[0], b.failures[1:]
	}
	b.mu.Unlock()
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"error": "internal detail: db password is hunter2"})
		return
	}
	c.Next()
}

func (b *fakeBackend) auth(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+testToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
		return
	}
	c.Next()
}

func (b *fakeBackend) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	b.mu.Lock()
	defer b.mu.Unlock()

	start := (page - 1) * limit
	out := []map[string]interface{}{}
	for i := start; i < len(b.order) && i < start+limit; i++ {
		out = append(out, b.users[b.order[i]])
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": len(b.order), "page": page})
}

func (b *fakeBackend) get(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.users[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (b *fakeBackend) patch(c *gin.Context) {
	body, _ := c.Get("body")
	b.mu.Lock()
	defer b.mu.Unlock()
	user, ok := b.users[c.Param("id")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	for k, v := range body.(map[string]interface{}) {
		user[k] = v
	}
	c.JSON(http.StatusOK, user)
}

func (b *fakeBackend) delete(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := c.Param("id")
	if _, ok := b.users[id]; !ok {
		c.Status(http.StatusNotFound)
		return
	}
	delete(b.users, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	c.Status(http.StatusNoContent)
}

func (b *fakeBackend) login(c *gin.Context) {
	body, _ := c.Get("body")
	creds, _ := body.(map[string]interface{})
	switch {
	case creds["username"] != "ann":
		c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND"})
	case creds["password"] != "S3cret!pw":
		c.JSON(http.StatusUnauthorized, gin.H{"code": "WRONG_PASSWORD"})
	default:
		c.JSON(http.StatusOK, gin.H{"token": testToken, "user": gin.H{"id": 1, "name": "Ann", "role": "admin"}})
	}
}

func (b *fakeBackend) client(tokens TokenSource) *Client {
	b.t.Helper()
	c, err := NewClient(ClientOptions{
		BaseURL:       b.server.URL,
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		MaxListLimit:  50,
		Tokens:        tokens,
		Logger:        logger.NewTestLogger(),
		Metrics:       metrics.NewTestMetrics(),
	})
	require.NoError(b.t, err)
	return c
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
