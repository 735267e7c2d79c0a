package dashboard

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.isAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderLogin(w, "")
}

func (s *Server) renderLogin(w http.ResponseWriter, errMsg string) {
	s.renderPage(w, "login.html", map[string]string{"Error": errMsg})
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "dashboard.html", map[string]any{"Status": s.bot.Status()})
}

func (s *Server) handleLogsPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "logs.html", nil)
}

func (s *Server) handleEmbeddingsPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "embeddings.html", map[string]any{
		"Collections": s.knowledge.ListCollections(),
	})
}
