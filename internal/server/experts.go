package server

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docser/internal/swarm"
)

// maxDocumentBytes bounds one uploaded briefing document.
const maxDocumentBytes = 32 << 20

func (s *Server) registerExperts(g *echo.Group) {
	g.GET("", s.listExperts)
	g.POST("/documents", s.briefDocument)
	g.DELETE("/:name", s.removeExpert)
}

func (s *Server) listExperts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"experts": s.registry.List()})
}

// briefDocument spawns a document expert from a multipart upload. The expert
// name is the file name; re-uploading a briefed name is a no-op.
func (s *Server) briefDocument(c echo.Context) error {
	file, err := c.FormFile("document")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document file is required")
	}
	if file.Size > maxDocumentBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document too large")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	mime := file.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	doc := swarm.Document{Name: file.Filename, MIMEType: mime, Data: data}
	if err := s.registry.BriefDocumentExpert(c.Request().Context(), doc); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "briefing failed: "+err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"expert": doc.Name})
}

func (s *Server) removeExpert(c echo.Context) error {
	name := c.Param("name")
	if !s.registry.Has(name) {
		return echo.NewHTTPError(http.StatusNotFound, "no such expert")
	}
	if name == swarm.WebExpertName || name == swarm.URLExpertName {
		return echo.NewHTTPError(http.StatusBadRequest, "standing experts cannot be removed")
	}
	s.registry.Remove(name)
	return c.NoContent(http.StatusNoContent)
}
