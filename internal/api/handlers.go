package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/chat"
	"github.com/agentshub/internal/knowledge"
)

type chatRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

type codeRequest struct {
	Agent string `json:"agent"`
	Code  string `json:"code"`
}

type learningRequest struct {
	StudentID string `json:"student_id"`
	Topic     string `json:"topic"`
}

type ingestRequest struct {
	Agent string   `json:"agent"`
	Paths []string `json:"paths"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// fail maps hub errors onto HTTP responses.
func fail(c echo.Context, err error) error {
	var initErr *InitError
	switch {
	case errors.As(err, &initErr):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": initErr.Error()})
	case errors.Is(err, chat.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, agents.ErrUnknownAgent):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) session(ctx context.Context, c echo.Context) (*chat.ChatSession, error) {
	return s.hub.Sessions().Get(ctx, c.Param("id"))
}

func (s *Server) listAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"agents":  agents.Labels,
		"default": agents.DefaultLabel,
	})
}

func (s *Server) createSession(c echo.Context) error {
	sess, err := s.hub.CreateSession(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	token, err := s.tokens.SetCookie(c, sess.SessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{SessionID: sess.SessionID, Token: token})
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.session(c.Request().Context(), c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.hub.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMessages(c echo.Context) error {
	sess, err := s.session(c.Request().Context(), c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Messages)
}

func (s *Server) initAgent(c echo.Context) error {
	ctx := c.Request().Context()
	label, err := url.PathUnescape(c.Param("agent"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agent")
	}
	sess, err := s.session(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	if err := s.hub.InitAgent(ctx, sess, label); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"agent":       label,
		"initialized": sess.InitializedAgents(),
	})
}

func (s *Server) chat(c echo.Context) error {
	ctx := c.Request().Context()
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Agent == "" {
		req.Agent = agents.DefaultLabel
	}
	sess, err := s.session(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	ex, err := s.hub.Chat(ctx, sess, req.Agent, req.Message)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ex)
}

func (s *Server) code(c echo.Context) error {
	ctx := c.Request().Context()
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := s.session(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	ex, err := s.hub.Code(ctx, sess, req.Agent, req.Code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ex)
}

func (s *Server) learning(c echo.Context) error {
	ctx := c.Request().Context()
	var req learningRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := s.session(ctx, c)
	if err != nil {
		return fail(c, err)
	}
	ex, err := s.hub.Learn(ctx, sess, req.StudentID, req.Topic)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ex)
}

func (s *Server) ingestKnowledge(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	paths, err := knowledge.ConfinePaths(s.docs, req.Paths)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	out, err := s.hub.Ingest(c.Request().Context(), req.Agent, paths)
	if err != nil {
		return fail(c, err)
	}
	if out.Queued {
		return c.JSON(http.StatusAccepted, out)
	}
	return c.JSON(http.StatusOK, out)
}
