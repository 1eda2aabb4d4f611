package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/store"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

// RunRequest is the POST /api/runs body. Images are base64-encoded.
type RunRequest struct {
	Query   string       `json:"query"`
	History []swarm.Turn `json:"history,omitempty"`
	Images  []struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"images,omitempty"`
}

// AnswersRequest resumes a clarification-suspended query.
type AnswersRequest struct {
	Query   string                `json:"query"`
	History []swarm.Turn          `json:"history,omitempty"`
	Answers []swarm.ClarifyAnswer `json:"answers"`
}

func (s *Server) registerRuns(g *echo.Group) {
	g.POST("", s.startRun)
	g.GET("", s.listRuns)
	g.GET("/:id", s.getRun)
	g.GET("/:id/steps", s.getRunSteps)
	g.POST("/:id/answers", s.resumeRun)
	g.DELETE("/:id", s.stopRun)
}

// startRun executes the pipeline synchronously. A new request supersedes any
// run still in flight; the superseded caller gets its result marked stopped.
func (s *Server) startRun(c echo.Context) error {
	var body RunRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	req := swarm.Request{Query: body.Query, History: body.History}
	for _, img := range body.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid image encoding")
		}
		req.Images = append(req.Images, gateway.Blob{MIMEType: img.MIMEType, Data: data})
	}
	return s.execute(c, req)
}

// resumeRun re-enters the pipeline with clarification answers. Intent and
// clarification are settled; planning starts from the augmented query.
func (s *Server) resumeRun(c echo.Context) error {
	var body AnswersRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if body.Query == "" || len(body.Answers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "query and answers are required")
	}
	return s.execute(c, swarm.Request{Query: body.Query, History: body.History, Answers: body.Answers})
}

// execute runs the pipeline and returns whatever result it converged to.
// Failed and stopped runs still produce a result body with the user-facing
// message; only transport-level problems become HTTP errors.
func (s *Server) execute(c echo.Context, req swarm.Request) error {
	res, _ := s.orch.Run(c.Request().Context(), req)
	s.persist(res)
	return c.JSON(http.StatusOK, res)
}

// persist writes a finished run to whatever stores are configured. Storage
// failures are logged, never surfaced; the result already exists.
func (s *Server) persist(res *swarm.RunResult) {
	if res == nil {
		return
	}
	ctx := context.Background()
	if s.live != nil {
		if err := s.live.SaveRun(ctx, res); err != nil {
			s.logger.Printf("live state save failed for run %s: %v", res.ID, err)
		}
	}
	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, res); err != nil {
			s.logger.Printf("archive save failed for run %s: %v", res.ID, err)
		}
	}
}

func (s *Server) getRun(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if s.live != nil {
		if res, err := s.live.GetRun(ctx, id); err == nil {
			return c.JSON(http.StatusOK, res)
		}
	}
	if s.archive != nil {
		res, err := s.archive.GetRun(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
	return echo.NewHTTPError(http.StatusNotFound, "run not found")
}

// getRunSteps serves the step log. In-flight runs exist only in live state,
// so that is consulted first; archived runs come from the step table.
func (s *Server) getRunSteps(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if s.live != nil {
		if res, err := s.live.GetRun(ctx, id); err == nil {
			return c.JSON(http.StatusOK, res.Steps)
		}
	}
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	steps, err := s.archive.ListSteps(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, steps)
}

func (s *Server) listRuns(c echo.Context) error {
	if s.archive == nil {
		return c.JSON(http.StatusOK, []store.RunSummary{})
	}
	runs, err := s.archive.ListRuns(c.Request().Context(), 50)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

// stopRun cancels the in-flight run. The id is advisory; at most one run is
// active at a time.
func (s *Server) stopRun(c echo.Context) error {
	s.orch.Stop()
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}
