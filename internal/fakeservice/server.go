// Package fakeservice emulates the document conversion service over HTTP.
// It applies the service's request rules and returns canned LaTeX, so the
// client can be exercised end to end without the real converter.
package fakeservice

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/ratelimit"
)

// Options configures the fake service. Zero values are usable.
type Options struct {
	// Delay is how long a conversion takes before it answers.
	Delay time.Duration
	// FailConversions makes every conversion answer with an error body.
	FailConversions bool
	// MaxUploadBytes caps request bodies; zero means 12 MiB.
	MaxUploadBytes int64
	// RequestsPerSecond enables a request rate limit answering 429.
	// Zero disables it.
	RequestsPerSecond float64
	// Burst is the number of requests allowed back to back; zero means 1.
	Burst  int
	Logger *logging.Logger
}

type job struct {
	archiveName string
	archive     []byte
}

// Service holds the fake service state: custom templates and finished jobs.
type Service struct {
	opts   Options
	logger *logging.Logger
	engine  *gin.Engine
	limiter *ratelimit.RateLimiter
	now     func() time.Time

	mu        sync.Mutex
	templates map[string][]byte // custom templates by stem
	jobs      map[string]job
}

// New creates a fake service with the built-in templates only.
func New(opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = constants.MaxDocumentSize + 2*1024*1024
	}
	s := &Service{
		opts:      opts,
		logger:    logging.OrDefault(opts.Logger).Child("stub"),
		now:       time.Now,
		templates: make(map[string][]byte),
		jobs:      make(map[string]job),
	}

	if opts.RequestsPerSecond > 0 {
		s.limiter = ratelimit.NewRateLimiter(opts.RequestsPerSecond, float64(opts.Burst), s.logger)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(s.rateLimit())
	engine.Use(maxBodySize(opts.MaxUploadBytes))
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Disposition"},
	}))
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving the service API.
func (s *Service) Handler() nethttp.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Service) Run(ctx context.Context, addr string) error {
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("fake conversion service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = nethttp.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// rateLimit rejects requests beyond the configured rate. Health checks
// are never limited.
func (s *Service) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if !s.limiter.Allow() {
			c.Header("Retry-After", strconv.Itoa(s.limiter.RetryAfterSeconds()))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(nethttp.StatusTooManyRequests, gin.H{"detail": "too many requests"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(s.limiter.Tokens())))
		c.Next()
	}
}
