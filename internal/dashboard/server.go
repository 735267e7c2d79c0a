// Package dashboard serves the web control panel: bot lifecycle, usage
// statistics, log viewing and knowledge base administration. All endpoints
// except the login page sit behind a session cookie.
package dashboard

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/prosabot/prosa/internal/config"
	"github.com/prosabot/prosa/internal/gateway"
	"github.com/prosabot/prosa/internal/ingest"
	"github.com/prosabot/prosa/internal/store"
)

const (
	sessionName      = "prosa_session"
	sessionAuthKey   = "authenticated"
	defaultTailLines = 100
	maxTailLines     = 1000
	maxUploadBytes   = 5 << 20
)

// Bot is the lifecycle surface the panel drives.
type Bot interface {
	Start() gateway.Result
	Stop() gateway.Result
	Restart() gateway.Result
	Status() gateway.Status
}

// StatsSource reports aggregate usage numbers.
type StatsSource interface {
	GlobalStats() (*store.GlobalStats, error)
}

// KnowledgeAdmin administers the vector knowledge base.
type KnowledgeAdmin interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string, collection string) (string, bool)
	CountDocuments(collection string) int64
	ListCollections() []string
	DeleteAllDocuments(collection string) bool
}

// Processor ingests pending documents on demand.
type Processor interface {
	Process(ctx context.Context) (int, error)
}

type Server struct {
	cfg       config.DashboardConfig
	bot       Bot
	stats     StatsSource
	knowledge KnowledgeAdmin
	processor Processor
	logFile   string
	sessions  *sessions.CookieStore
	logger    *slog.Logger

	httpServer *http.Server
}

func NewServer(cfg config.DashboardConfig, bot Bot, stats StatsSource, knowledge KnowledgeAdmin, processor Processor, logFile string, logger *slog.Logger) *Server {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// Without a configured secret, sessions do not survive restarts.
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	cookieStore := sessions.NewCookieStore(secret)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		cfg:       cfg,
		bot:       bot,
		stats:     stats,
		knowledge: knowledge,
		processor: processor,
		logFile:   logFile,
		sessions:  cookieStore,
		logger:    logger.With("component", "dashboard"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requirePageAuth)
		r.Get("/", s.handleDashboardPage)
		r.Get("/logs", s.handleLogsPage)
		r.Get("/embeddings", s.handleEmbeddingsPage)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIAuth)
		r.Post("/bot/start", s.handleBotStart)
		r.Post("/bot/stop", s.handleBotStop)
		r.Post("/bot/restart", s.handleBotRestart)
		r.Get("/bot/status", s.handleBotStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/uptime", s.handleUptime)
		r.Get("/logs/stream", s.handleLogStream)
		r.Get("/logs/export", s.handleLogExport)
		r.Get("/embeddings/stats", s.handleEmbeddingsStats)
		r.Post("/embeddings/clear", s.handleEmbeddingsClear)
		r.Post("/embeddings/process", s.handleEmbeddingsProcess)
	})

	return r
}

// Start begins serving in the background. Use Shutdown to stop.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- auth ---

func (s *Server) isAuthenticated(r *http.Request) bool {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, ok := session.Values[sessionAuthKey].(bool)
	return ok && auth
}

func (s *Server) requirePageAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthenticated(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "não autenticado"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkCredentials(user, pass string) bool {
	if s.cfg.AdminPass == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.AdminPass)) == 1
	return userOK && passOK
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "formulário inválido", http.StatusBadRequest)
		return
	}
	user := r.PostFormValue("username")
	pass := r.PostFormValue("password")

	if !s.checkCredentials(user, pass) {
		s.logger.Warn("login rejected", "user", user)
		s.renderLogin(w, "Usuário ou senha incorretos")
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionAuthKey] = true
	if err := session.Save(r, w); err != nil {
		http.Error(w, "erro ao criar sessão", http.StatusInternalServerError)
		return
	}
	s.logger.Info("login accepted", "user", user)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	session.Values[sessionAuthKey] = false
	session.Options.MaxAge = -1
	_ = session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// --- bot lifecycle ---

func (s *Server) handleBotStart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Start())
}

func (s *Server) handleBotStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Stop())
}

func (s *Server) handleBotRestart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Restart())
}

func (s *Server) handleBotStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	st := s.bot.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":        st.Running,
		"uptime_seconds": st.UptimeSeconds,
		"uptime":         st.Uptime,
	})
}

// --- stats ---

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	g, err := s.stats.GlobalStats()
	if err != nil {
		s.logger.Error("global stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "erro ao consultar estatísticas"})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// --- logs ---

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	n := defaultTailLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}
	if n > maxTailLines {
		n = maxTailLines
	}

	lines, err := tailFile(s.logFile, n)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"lines": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleLogExport(w http.ResponseWriter, _ *http.Request) {
	f, err := os.Open(s.logFile)
	if err != nil {
		http.Error(w, "arquivo de log indisponível", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=prosa-%s.log", time.Now().Format("2006-01-02")))
	_, _ = io.Copy(w, f)
}

// tailFile returns the last n lines of the file at path.
func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// --- knowledge base ---

func (s *Server) handleEmbeddingsStats(w http.ResponseWriter, _ *http.Request) {
	type collectionStat struct {
		Name  string `json:"name"`
		Count int64  `json:"count"`
	}

	names := s.knowledge.ListCollections()
	collections := make([]collectionStat, 0, len(names))
	var total int64
	for _, name := range names {
		count := s.knowledge.CountDocuments(name)
		total += count
		collections = append(collections, collectionStat{Name: name, Count: count})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents": total,
		"collections":     collections,
	})
}

func (s *Server) handleEmbeddingsClear(w http.ResponseWriter, _ *http.Request) {
	if !s.knowledge.DeleteAllDocuments("") {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Erro ao limpar a base de conhecimento",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Base de conhecimento limpa com sucesso",
	})
}

// handleEmbeddingsProcess accepts a multipart file upload and stores its
// paragraphs in the knowledge base. Without an uploaded file it falls back to
// sweeping the server-side pending-documents directory.
func (s *Server) handleEmbeddingsProcess(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.processUpload(w, r)
		return
	}

	if s.processor == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Processamento de documentos não configurado",
		})
		return
	}

	processed, err := s.processor.Process(r.Context())
	if err != nil {
		s.logger.Error("document processing failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": fmt.Sprintf("Erro ao processar documentos: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": processed,
		"message":   fmt.Sprintf("%d documento(s) processado(s)", processed),
	})
}

func (s *Server) processUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Upload inválido",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Nenhum arquivo enviado",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Erro ao ler o arquivo",
		})
		return
	}

	chunks := ingest.SplitParagraphs(string(data))
	if len(chunks) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "O arquivo não tem conteúdo para importar",
		})
		return
	}

	stored := 0
	for idx, chunk := range chunks {
		metadata := map[string]string{
			"source": header.Filename,
			"chunk":  strconv.Itoa(idx),
		}
		if _, ok := s.knowledge.AddDocument(r.Context(), chunk, metadata, ""); !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":   false,
				"processed": stored,
				"message":   fmt.Sprintf("Erro ao armazenar o trecho %d de %s", idx+1, header.Filename),
			})
			return
		}
		stored++
	}

	s.logger.Info("document uploaded", "file", header.Filename, "chunks", stored)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": stored,
		"message":   fmt.Sprintf("%s: %d documento(s) adicionado(s)", header.Filename, stored),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
