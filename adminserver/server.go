// Package adminserver is a small HTTP introspection surface for
// operators, grounded on the teacher's coordinator/main.go gin routes
// (listActions, getStatus), generalized here to introspect the local
// Module Registry and spool instead of an MQTT-announced action table.
// It implements no PXP/PCP semantics; the Request Processor never depends
// on it.
package adminserver

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/parisiale/pxp-agent/agent"
)

// ModuleInfo has the JSON shape of one row of GET /modules; the handler
// itself renders agent.ModuleSummary values, which share that shape.
type ModuleInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Actions []string `json:"actions"`
}

// Server exposes /health, /modules, and /transactions/:id.
type Server struct {
	registry  *agent.Registry
	spoolDir  string
	connected func() bool
	router    *gin.Engine
}

// New builds the gin router. connected reports whether the agent's
// connector currently considers itself connected, used by /health.
func New(registry *agent.Registry, spoolDir string, connected func() bool) *Server {
	s := &Server{registry: registry, spoolDir: spoolDir, connected: connected}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET"},
	}))

	r.GET("/health", s.health)
	r.GET("/modules", s.listModules)
	r.GET("/transactions/:id", s.transaction)

	s.router = r
	return s
}

// Handler returns the underlying http.Handler, e.g. for http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) health(c *gin.Context) {
	if s.connected != nil && !s.connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listModules(c *gin.Context) {
	infos := s.registry.List()
	c.JSON(http.StatusOK, infos)
}

func (s *Server) transaction(c *gin.Context) {
	id := c.Param("id")
	path := filepath.Join(s.spoolDir, id, "metadata")
	raw, err := os.ReadFile(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such transaction"})
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt metadata"})
		return
	}
	c.JSON(http.StatusOK, doc)
}
