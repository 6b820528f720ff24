package todoserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"time"

	"github.com/amonks/tasksync/todo"
)

// LocalOwner owns every todo when the server runs without tokens.
const LocalOwner = "local"

const shutdownTimeout = 5 * time.Second

var errUnauthorized = errors.New("unauthorized")

// Options configures a Server.
type Options struct {
	// Store holds the todos. Nil means a fresh in-memory store.
	Store *Store

	// Tokens maps bearer tokens to owner IDs. When empty, requests are not
	// authenticated and belong to LocalOwner.
	Tokens map[string]string

	Logger *log.Logger
}

// Server serves the todo API.
type Server struct {
	store  *Store
	tokens map[string]string
	logger *log.Logger
}

type ownerKey struct{}

// New creates a server.
func New(opts Options) *Server {
	store := opts.Store
	if store == nil {
		store = NewStore(StoreOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "todoserver: ", log.LstdFlags)
	}
	return &Server{store: store, tokens: opts.Tokens, logger: logger}
}

// Store returns the server's backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler for the todo API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/todos", s.handleTodos)
	mux.HandleFunc("/todos/counts", s.handleCounts)
	mux.HandleFunc("/todos/{id}", s.handleTodo)
	return s.recoverHandler(s.authenticate(mux))
}

// Serve runs the server on the given address until interrupted.
func (s *Server) Serve(addr string) error {
	server := &http.Server{
		Addr:     addr,
		Handler:  s.Handler(),
		ErrorLog: s.logger,
	}

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- server.ListenAndServe()
	}()
	s.logf("listening on %s", addr)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	select {
	case err := <-listenErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf("server stopped: %v", err)
			return err
		}
		return nil
	case <-interrupts:
		s.logf("interrupt received, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		shutdownErr := server.Shutdown(shutdownCtx)
		cancel()
		listenErr := <-listenErrs
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		return errors.Join(shutdownErr, listenErr)
	}
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (s *Server) handleTodo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPatch:
		s.handleUpdate(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "PATCH, DELETE")
		s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	view, err := todo.ParseView(r.URL.Query().Get("view"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.List(owner(r), view))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input todo.NewTodo
	if err := decodeJSON(r, &input); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	created, err := s.store.Create(owner(r), input)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch todo.Patch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	updated, err := s.store.Update(owner(r), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.Delete(owner(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Counts(owner(r)))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := LocalOwner
		if len(s.tokens) > 0 {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			found := ""
			if ok {
				found = s.tokens[strings.TrimSpace(token)]
			}
			if found == "" {
				s.writeError(w, r, http.StatusUnauthorized, errUnauthorized)
				return
			}
			principal = found
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, principal)))
	})
}

func owner(r *http.Request) string {
	if principal, ok := r.Context().Value(ownerKey{}).(string); ok {
		return principal
	}
	return LocalOwner
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, todo.ErrTodoNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := &responseTracker{ResponseWriter: w}
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logf("panic handling request %s %s: %v\n%s", r.Method, r.URL.Path, recovered, debug.Stack())
				if writer.wroteHeader {
					return
				}
				writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(writer, r)
	})
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected extra JSON data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logRequestError(r, status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) logRequestError(r *http.Request, status int, err error) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf("request %s %s failed (%d): %v", r.Method, r.URL.Path, status, err)
}

func (s *Server) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

type responseTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *responseTracker) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseTracker) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(data)
}
