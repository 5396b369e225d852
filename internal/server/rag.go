package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/ebookqa/internal/answer"
	"github.com/mohammad-safakhou/ebookqa/internal/provider"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
)

func (s *Server) registerRAG(g *echo.Group) {
	g.POST("/:id/ask", s.ask)
	g.POST("/:id/summarize", s.summarize)
	g.POST("/:id/interview-questions", s.interviewQuestions)
	g.GET("/:id/messages", s.listMessages)
	g.GET("/:id/interview-sessions", s.listInterviewSessions)
}

func mapAnswerErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, answer.ErrNoContent):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "document has no readable content")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) ask(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	userID := runtime.UserID(c)

	conv, err := s.Store.GetOrCreateConversation(ctx, userID, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	msgs, err := s.Store.RecentMessages(ctx, conv.ID, s.Cfg.Retrieval.HistoryTurns)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, provider.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := s.Engine.Answer(ctx, userID, id, req.Question, history)
	if err != nil {
		return mapAnswerErr(err)
	}

	// Refusals are part of the transcript too; they carry signal for the
	// user's next question.
	if _, err := s.Store.AppendMessage(ctx, conv.ID, "user", req.Question); err != nil {
		s.Logger.Printf("conversation %d: record question: %v", conv.ID, err)
	}
	if _, err := s.Store.AppendMessage(ctx, conv.ID, "assistant", reply); err != nil {
		s.Logger.Printf("conversation %d: record answer: %v", conv.ID, err)
	}
	return c.JSON(http.StatusOK, AskResponse{Answer: reply})
}

func (s *Server) summarize(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	var req SummarizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := s.Engine.Summarize(c.Request().Context(), runtime.UserID(c), id, req.Scope)
	if err != nil {
		return mapAnswerErr(err)
	}
	return c.JSON(http.StatusOK, SummaryResponse{Summary: summary})
}

func (s *Server) interviewQuestions(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	var req InterviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	userID := runtime.UserID(c)
	questions, err := s.Engine.InterviewQuestions(ctx, userID, id, req.Level)
	if err != nil {
		return mapAnswerErr(err)
	}

	sess, err := s.Store.CreateInterviewSession(ctx, userID, id, questions)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, InterviewResponse{SessionID: sess.ID, Questions: questions})
}

func (s *Server) listConversations(c echo.Context) error {
	convs, err := s.Store.ListConversations(c.Request().Context(), runtime.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) listMessages(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := runtime.UserID(c)
	if _, err := s.Store.GetDocument(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	conv, err := s.Store.GetOrCreateConversation(ctx, userID, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	msgs, err := s.Store.RecentMessages(ctx, conv.ID, 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) listInterviewSessions(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	sessions, err := s.Store.ListInterviewSessions(c.Request().Context(), runtime.UserID(c), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sessions == nil {
		sessions = []store.InterviewSession{}
	}
	return c.JSON(http.StatusOK, sessions)
}
