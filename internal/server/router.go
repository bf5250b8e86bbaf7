// Package server exposes the supervisor over HTTP for the product's web
// layer. Endpoints (under basePath, default /api):
//
//	POST /workers/:owner/start   body: worker config JSON
//	POST /workers/:owner/stop
//	GET  /workers/:owner/status
//	GET  /workers                list persisted statuses
//	GET  /healthz
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkyu/botkeeper/internal/status"
	"github.com/inkyu/botkeeper/internal/supervisor"
	"github.com/inkyu/botkeeper/internal/worker"
)

type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	if basePath == "" {
		basePath = "/api"
	}
	return &Router{sup: sup, basePath: basePath}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, okResp{OK: true}) })
	group := g.Group(r.basePath)
	group.POST("/workers/:owner/start", r.handleStart)
	group.POST("/workers/:owner/stop", r.handleStop)
	group.GET("/workers/:owner/status", r.handleStatus)
	group.GET("/workers", r.handleList)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) *http.Server {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func ownerParam(c *gin.Context) (int64, bool) {
	owner, err := strconv.ParseInt(c.Param("owner"), 10, 64)
	if err != nil || owner <= 0 {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid owner id"})
		return 0, false
	}
	return owner, true
}

func (r *Router) handleStart(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	var cfg worker.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if cfg.Command == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "config.command required"})
		return
	}
	if err := r.sup.Start(c.Request.Context(), owner, cfg); err != nil {
		if errors.Is(err, supervisor.ErrAlreadySupervised) {
			c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	if err := r.sup.Stop(c.Request.Context(), owner); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

type statusResp struct {
	status.Record
	Supervised bool `json:"supervised"`
	Attempts   int  `json:"attempts"`
}

func (r *Router) handleStatus(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	rec, err := r.sup.Status(c.Request.Context(), owner)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResp{Error: "unknown owner"})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResp{
		Record:     rec,
		Supervised: r.sup.Supervised(owner),
		Attempts:   r.sup.Attempts(owner),
	})
}

func (r *Router) handleList(c *gin.Context) {
	recs, err := r.sup.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	out := make([]statusResp, 0, len(recs))
	for _, rec := range recs {
		out = append(out, statusResp{
			Record:     rec,
			Supervised: r.sup.Supervised(rec.Owner),
			Attempts:   r.sup.Attempts(rec.Owner),
		})
	}
	c.JSON(http.StatusOK, out)
}
