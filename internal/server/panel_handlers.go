package server

import (
	"errors"
	"net/http"

	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/gin-gonic/gin"
)

// showPanel renders the operator panel. Loading the page refreshes the
// snapshot.
func (s *Server) showPanel(c *gin.Context) {
	if err := s.deps.Panel.Refresh(c.Request.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Panel refresh failed, showing previous snapshot")
	}

	c.HTML(http.StatusOK, "panel.html", gin.H{
		"Title": "Cache Control",
		"View":  s.deps.Panel.Snapshot(),
	})
}

// panelStats returns the current panel view as JSON.
func (s *Server) panelStats(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"data": s.deps.Panel.Snapshot()})
}

// panelClear handles POST /panel/clear with a "key" form or query value.
func (s *Server) panelClear(c *gin.Context) {
	key := c.PostForm("key")
	if key == "" {
		key = c.Query("key")
	}

	if err := s.deps.Panel.Clear(c.Request.Context(), key); err != nil {
		s.panelError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/panel")
}

func (s *Server) panelClearAll(c *gin.Context) {
	if err := s.deps.Panel.ClearAll(c.Request.Context()); err != nil {
		s.panelError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/panel")
}

// panelForceRefresh clears everything and sends the browser to the home
// page, which re-fetches from the origin.
func (s *Server) panelForceRefresh(c *gin.Context) {
	if err := s.deps.Panel.ForceRefresh(c.Request.Context()); err != nil {
		s.panelError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) panelError(c *gin.Context, err error) {
	if errors.Is(err, invalidation.ErrBadRequest) {
		respondError(c, http.StatusBadRequest, "Cache key is required")
		return
	}
	s.logger.Error().Err(err).Msg("Panel operation failed")
	respondError(c, http.StatusInternalServerError, "Failed to clear cache")
}
