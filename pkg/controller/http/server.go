package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/repository"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxAudioSize       = 25 << 20 // 25MB
)

// ChatUseCase is the application behind the HTTP API. *chat.UseCase implements it.
type ChatUseCase interface {
	Ask(ctx context.Context, input chat.AskInput) (*chat.AskOutput, error)
	AskAudio(ctx context.Context, userID string, audio []byte, mimeType string) (*chat.AskOutput, error)
	SearchMemory(ctx context.Context, query string, k int) (*model.RecallResult, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]*model.History, error)
	DeleteHistory(ctx context.Context, id model.HistoryID) error
}

// Server is the HTTP boundary of the assistant
type Server struct {
	router *chi.Mux
	uc     ChatUseCase
}

// New builds the router
func New(uc ChatUseCase) *Server {
	s := &Server{
		router: chi.NewRouter(),
		uc:     uc,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogger)
	r.Use(recoverer)

	r.Get("/health", handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/audio", s.handleChatAudio)
	r.Post("/memory/search", s.handleMemorySearch)
	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.handleListHistory)
		r.Delete("/{id}", s.handleDeleteHistory)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("http server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logging.From(ctx).Info("shutting down http server")
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "http server failed", goerr.V("addr", addr))
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown http server")
	}
	return nil
}

func withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.From(ctx).With("request_id", middleware.GetReqID(ctx))
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(logging.With(ctx, logger)))
	})
}

// recoverer turns a panic into a generic JSON error
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.From(r.Context()).Error("panic in handler",
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &errorResponse{Error: msg})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

type chatResponse struct {
	Query     string          `json:"query,omitempty"`
	Response  string          `json:"response"`
	HistoryID model.HistoryID `json:"history_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.uc.Ask(r.Context(), chat.AskInput{UserID: req.UserID, Query: req.Query})
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &chatResponse{Response: out.Response, HistoryID: out.HistoryID})
}

func (s *Server) handleChatAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(audio)
	}

	out, err := s.uc.AskAudio(r.Context(), r.FormValue("user_id"), audio, mimeType)
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &chatResponse{Query: out.Query, Response: out.Response, HistoryID: out.HistoryID})
}

func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.From(r.Context())

	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is required")
	case errors.Is(err, chat.ErrTranscriptionDisabled):
		writeError(w, http.StatusNotImplemented, "audio input is not enabled")
	case errors.Is(err, chat.ErrMemoryCommit):
		logger.Error("answer could not be stored in memory", "error", err)
		writeError(w, http.StatusInternalServerError, "the answer could not be saved to memory")
	default:
		logger.Error("failed to process query", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process query")
	}
}

type memorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type memorySearchResult struct {
	ID       model.MemoryID `json:"id"`
	Score    float64        `json:"score"`
	Query    string         `json:"query,omitempty"`
	Response string         `json:"response"`
}

type memorySearchResponse struct {
	Results []*memorySearchResult `json:"results"`
	Message string                `json:"message,omitempty"`
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req memorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recalled, err := s.uc.SearchMemory(r.Context(), req.Query, req.Limit)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		logging.From(r.Context()).Error("failed to search memory", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search memory")
		return
	}

	resp := &memorySearchResponse{
		Results: make([]*memorySearchResult, 0, len(recalled.Memories)),
		Message: recalled.Message,
	}
	for _, m := range recalled.Memories {
		resp.Results = append(resp.Results, &memorySearchResult{
			ID:       m.ID,
			Score:    m.Score,
			Query:    m.Query,
			Response: m.Response,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	History []*model.History `json:"history"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	histories, err := s.uc.ListHistory(r.Context(), userID, limit)
	if err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &historyResponse{History: histories})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := model.HistoryID(chi.URLParam(r, "id"))
	if err := s.uc.DeleteHistory(r.Context(), id); err != nil {
		s.writeHistoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": string(id)})
}

func (s *Server) writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "history not found")
	case errors.Is(err, chat.ErrHistoryDisabled):
		writeError(w, http.StatusNotImplemented, "history is not enabled")
	default:
		logging.From(r.Context()).Error("history operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history operation failed")
	}
}
