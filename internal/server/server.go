// Package server exposes the HTTP API: auth, document management and the
// question answering endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/provider"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
	"github.com/mohammad-safakhou/ebookqa/internal/vector"
)

// Ingest is the upload surface of the ingestion pipeline.
type Ingest interface {
	Upload(ctx context.Context, userID int64, filename string, data []byte) (store.Document, error)
}

// Answerer is the retrieval surface of the answer engine.
type Answerer interface {
	Answer(ctx context.Context, userID, docID int64, question string, history []provider.Message) (string, error)
	Summarize(ctx context.Context, userID, docID int64, scope string) (string, error)
	InterviewQuestions(ctx context.Context, userID, docID int64, level string) ([]string, error)
}

// VectorDeleter removes a document's chunks from the index.
type VectorDeleter interface {
	DeleteDoc(ctx context.Context, userID, docID int64) error
}

// BlobDeleter removes a stored upload.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) (bool, error)
}

// NewVectorCleaner adapts a vector store to the VectorDeleter surface.
func NewVectorCleaner(st vector.Store) VectorDeleter {
	return vectorCleaner{st: st}
}

type vectorCleaner struct{ st vector.Store }

func (v vectorCleaner) DeleteDoc(ctx context.Context, userID, docID int64) error {
	return v.st.Delete(ctx, vector.Namespace(userID), vector.Filter{DocID: docID, UserID: userID})
}

// Server wires handlers to their dependencies.
type Server struct {
	Store    *store.Store
	Ingest   Ingest
	Engine   Answerer
	Vectors  VectorDeleter
	Blobs    BlobDeleter
	Cfg      *config.Config
	Logger   *log.Logger
	echoInst *echo.Echo
}

// New builds the echo instance with all routes registered.
func New(st *store.Store, ingest Ingest, engine Answerer, vectors VectorDeleter, blobs BlobDeleter,
	cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	s := &Server{Store: st, Ingest: ingest, Engine: engine, Vectors: vectors, Blobs: blobs,
		Cfg: cfg, Logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	s.registerAuth(api.Group("/auth"))

	secret := []byte(cfg.Server.JWTSecret)
	docs := api.Group("/docs")
	docs.Use(runtime.EchoAuthMiddleware(secret))
	s.registerDocs(docs)
	s.registerRAG(docs)

	convs := api.Group("/conversations")
	convs.Use(runtime.EchoAuthMiddleware(secret))
	convs.GET("", s.listConversations)

	me := api.Group("/me")
	me.Use(runtime.EchoAuthMiddleware(secret))
	me.GET("", s.me)

	s.echoInst = e
	return s
}

// Echo exposes the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echoInst }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	return s.echoInst.Start(s.Cfg.Server.Address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoInst.Shutdown(ctx)
}
