package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"boxoffice/internal/shared/testutil"
	"boxoffice/pkg/logger"

	"github.com/gin-gonic/gin"
)

const testKey = "3f1c9a7e-order-key-0001"

func newRouter(t *testing.T, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, client := testutil.NewRedis(t)
	store := NewStore(client, Config{Enabled: true, TTL: time.Hour, LockTTL: time.Minute})

	r := gin.New()
	r.POST("/checkout/session", Middleware(store, logger.Discard()), handler)
	return r
}

func post(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReplaysSuccessfulResponse(t *testing.T) {
	var calls int32
	r := newRouter(t, func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"order": n})
	})

	first := post(r, testKey, `{"qty":2}`)
	second := post(r, testKey, `{"qty":2}`)

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay, got %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if first.Header().Get(HeaderReplayed) != "" {
		t.Fatalf("expected no replay header on the first response")
	}
}

func TestDifferentBodyIsANewRequest(t *testing.T) {
	var calls int32
	r := newRouter(t, func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{})
	})

	post(r, testKey, `{"qty":2}`)
	post(r, testKey, `{"qty":3}`)
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestRequestsWithoutKeyPassThrough(t *testing.T) {
	var calls int32
	r := newRouter(t, func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{})
	})

	post(r, "", `{}`)
	post(r, "", `{}`)
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}

func TestKeyLength(t *testing.T) {
	r := newRouter(t, func(c *gin.Context) { c.Status(http.StatusCreated) })

	for _, key := range []string{"short", strings.Repeat("k", 256)} {
		if w := post(r, key, `{}`); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for key of length %d, got %d", len(key), w.Code)
		}
	}
	if w := post(r, strings.Repeat("k", 255), `{}`); w.Code != http.StatusCreated {
		t.Fatalf("expected 255 chars to be accepted, got %d", w.Code)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	var calls int32
	r := newRouter(t, func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			c.JSON(http.StatusConflict, gin.H{"kind": "INSUFFICIENT_INVENTORY"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{})
	})

	if w := post(r, testKey, `{}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w := post(r, testKey, `{}`); w.Code != http.StatusCreated {
		t.Fatalf("expected retry to reach the handler, got %d", w.Code)
	}
}

func TestConcurrentRequestWithSameKey(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := newRouter(t, func(c *gin.Context) {
		close(started)
		<-release
		c.JSON(http.StatusCreated, gin.H{})
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- post(r, testKey, `{}`) }()
	<-started

	if w := post(r, testKey, `{}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while in flight, got %d", w.Code)
	}
	close(release)
	if w := <-done; w.Code != http.StatusCreated {
		t.Fatalf("expected first request to finish, got %d", w.Code)
	}

	if w := post(r, testKey, `{}`); w.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("expected replay after completion")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(testKey, "POST", "/checkout/session", []byte(`{}`))
	if a != Fingerprint(testKey, "POST", "/checkout/session", []byte(`{}`)) {
		t.Fatalf("expected stable fingerprint")
	}
	if a == Fingerprint(testKey, "POST", "/checkout/orders", []byte(`{}`)) {
		t.Fatalf("expected path to change the fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}
