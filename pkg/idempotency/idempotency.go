// Package idempotency replays responses of requests repeated with the same
// Idempotency-Key. State lives in Redis so every instance sees it.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"boxoffice/internal/shared/utils/response"
	"boxoffice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	MinKeyLength = 16
	MaxKeyLength = 255

	keyPrefix = "boxoffice:idempotency:"
)

// Config contains the Idempotency-Key settings
type Config struct {
	Enabled bool
	TTL     time.Duration // how long a completed response is replayed
	LockTTL time.Duration // upper bound on an in-flight request
}

// Record is a cached response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Store struct {
	client *redis.Client
	config Config
}

func NewStore(client *redis.Client, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Store{client: client, config: cfg}
}

// Fingerprint binds a key to the request it was first used with.
func Fingerprint(key, method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(key + ":" + method + ":" + path + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) Get(ctx context.Context, fingerprint string) (*Record, error) {
	raw, err := s.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency get error: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("idempotency unmarshal error: %w", err)
	}
	return &rec, nil
}

func (s *Store) Save(ctx context.Context, fingerprint string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency marshal error: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+fingerprint, raw, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("idempotency set error: %w", err)
	}
	return nil
}

// Lock marks the fingerprint in flight. It returns false when another
// request holds it.
func (s *Store) Lock(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+"lock:"+fingerprint, 1, s.config.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lock error: %w", err)
	}
	return ok, nil
}

func (s *Store) Unlock(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, keyPrefix+"lock:"+fingerprint).Err()
}

// recordingWriter keeps a copy of what the handler writes.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored 2xx response of a request already served
// under the same key, and answers 409 while the first one is still running.
// Requests without the header pass through.
func Middleware(store *Store, log *logger.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log).WithComponent("idempotency")

	return func(c *gin.Context) {
		if store == nil || !store.config.Enabled {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) < MinKeyLength || len(key) > MaxKeyLength {
			response.RespondJSON(c, "error", http.StatusBadRequest,
				fmt.Sprintf("%s must be between %d and %d characters", HeaderKey, MinKeyLength, MaxKeyLength), nil, nil)
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		fingerprint := Fingerprint(key, c.Request.Method, c.Request.URL.Path, body)

		cached, err := store.Get(ctx, fingerprint)
		if err != nil {
			log.ErrorWithContext(ctx, "idempotency lookup failed", err, nil)
			response.RespondJSON(c, "error", http.StatusInternalServerError, "Idempotency check failed", nil, nil)
			c.Abort()
			return
		}
		if cached != nil {
			c.Header(HeaderReplayed, "true")
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		locked, err := store.Lock(ctx, fingerprint)
		if err != nil {
			log.ErrorWithContext(ctx, "idempotency lock failed", err, nil)
			response.RespondJSON(c, "error", http.StatusInternalServerError, "Idempotency check failed", nil, nil)
			c.Abort()
			return
		}
		if !locked {
			response.RespondJSON(c, "error", http.StatusConflict,
				"A request with this Idempotency-Key is already in progress", nil, nil)
			c.Abort()
			return
		}
		// the request context may be cancelled by now
		defer store.Unlock(context.Background(), fingerprint)

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status < 200 || status >= 300 {
			return
		}
		rec := Record{Status: status, ContentType: rw.Header().Get("Content-Type"), Body: rw.body.Bytes()}
		if err := store.Save(context.Background(), fingerprint, rec); err != nil {
			log.ErrorWithContext(ctx, "failed to store idempotent response", err, nil)
		}
	}
}
