package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prosabot/prosa/internal/bus"
	"github.com/prosabot/prosa/internal/config"
	"github.com/prosabot/prosa/internal/llm"
	"github.com/prosabot/prosa/internal/rag"
	"github.com/prosabot/prosa/internal/store"
)

const helpText = `📚 **Comandos Disponíveis:**

**Conversa:**
` + "`!limpar`" + ` - Limpa seu histórico de conversas
` + "`!stats`" + ` - Mostra suas estatísticas pessoais
` + "`!stats_global`" + ` - Mostra estatísticas globais do bot

**RAG (Base de Conhecimento):**
` + "`!adicionar <texto>`" + ` - Adiciona um documento à base de conhecimento
` + "`!buscar <termo>`" + ` - Busca documentos similares
` + "`!rag_stats`" + ` - Mostra estatísticas da base de conhecimento
` + "`!limpar_rag`" + ` - Limpa toda a base de conhecimento

` + "`!ajuda`" + ` - Mostra esta mensagem

**Como usar:**
- Mencione o bot: @SeuBot sua pergunta
- Ou envie uma DM diretamente

O bot usa RAG para melhorar as respostas com informações da base de conhecimento!`

const searchPreviewLen = 200

// Storage is the slice of the persistent store the handler needs.
type Storage interface {
	UpsertUser(userID, username string) error
	AppendMessage(userID, role, content string) error
	RecentHistory(userID string, limit int) ([]store.Turn, error)
	ClearHistory(userID string) error
	UserStats(userID string) (*store.UserStats, error)
	GlobalStats() (*store.GlobalStats, error)
}

// Retriever is the slice of the similarity-search store the handler needs.
type Retriever interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string, collection string) (string, bool)
	SearchSimilar(ctx context.Context, query string, k int, collection string) []rag.Hit
	CountDocuments(collection string) int64
	ListCollections() []string
	DeleteAllDocuments(collection string) bool
}

// Completer produces the assistant reply for one turn.
type Completer interface {
	Complete(ctx context.Context, userMessage string, history []store.Turn, ragContext string) llm.Reply
}

// Handler classifies one inbound message and runs the matching command or
// the conversational turn. It is stateless between messages; all shared
// state lives in the injected collaborators.
type Handler struct {
	storage   Storage
	retriever Retriever
	completer Completer
	cfg       config.BotConfig
	logger    *slog.Logger
}

func NewHandler(storage Storage, retriever Retriever, completer Completer, cfg config.BotConfig, logger *slog.Logger) *Handler {
	return &Handler{
		storage:   storage,
		retriever: retriever,
		completer: completer,
		cfg:       cfg,
		logger:    logger.With("component", "bot"),
	}
}

// Handle services one eligible message end-to-end and returns the reply
// texts to send, in order. A nil result means the turn was dropped (storage
// write failure) and no reply goes out.
func (h *Handler) Handle(ctx context.Context, msg bus.InboundMessage) []string {
	cmd := ParseCommand(msg.Content)

	switch cmd.Kind {
	case KindHelp:
		return []string{helpText}
	case KindClearHistory:
		return h.clearHistory(msg)
	case KindStats:
		return h.userStats(msg)
	case KindGlobalStats:
		return h.globalStats()
	case KindAddDocument:
		return h.addDocument(ctx, msg, cmd.Arg)
	case KindSearch:
		return h.searchDocuments(ctx, cmd.Arg)
	case KindRAGStats:
		return h.ragStats()
	case KindClearRAG:
		return h.clearRAG()
	default:
		return h.conversation(ctx, msg, cmd.Arg)
	}
}

// conversation is the default path: history is loaded before this turn's
// messages are persisted, so the model only ever sees strictly prior turns.
func (h *Handler) conversation(ctx context.Context, msg bus.InboundMessage, text string) []string {
	if err := h.storage.UpsertUser(msg.UserID, msg.Username); err != nil {
		// Upsert failures do not abort the turn; the append below still
		// decides whether the turn survives.
		h.logger.Error("upsert user failed", "user", msg.UserID, "error", err)
	}

	history, err := h.storage.RecentHistory(msg.UserID, h.cfg.HistoryLimit)
	if err != nil {
		h.logger.Error("load history failed", "user", msg.UserID, "error", err)
		return nil
	}

	var ragContext string
	if hits := h.retriever.SearchSimilar(ctx, text, h.cfg.RAGResults, ""); len(hits) > 0 {
		texts := make([]string, len(hits))
		for i, hit := range hits {
			texts[i] = hit.Text
		}
		ragContext = strings.Join(texts, "\n\n")
	}

	if err := h.storage.AppendMessage(msg.UserID, store.RoleUser, text); err != nil {
		h.logger.Error("persist user turn failed", "user", msg.UserID, "error", err)
		return nil
	}

	reply := h.completer.Complete(ctx, text, history, ragContext)
	if reply.Degraded {
		h.logger.Warn("degraded completion", "user", msg.UserID)
	}

	if err := h.storage.AppendMessage(msg.UserID, store.RoleAssistant, reply.Text); err != nil {
		h.logger.Error("persist assistant turn failed", "user", msg.UserID, "error", err)
		return nil
	}

	return []string{reply.Text}
}

func (h *Handler) clearHistory(msg bus.InboundMessage) []string {
	if err := h.storage.ClearHistory(msg.UserID); err != nil {
		h.logger.Error("clear history failed", "user", msg.UserID, "error", err)
		return nil
	}
	return []string{"✅ Seu histórico de conversas foi limpo! Vamos começar uma nova conversa."}
}

func (h *Handler) userStats(msg bus.InboundMessage) []string {
	st, err := h.storage.UserStats(msg.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return []string{"Ainda não há estatísticas para você."}
	}
	if err != nil {
		h.logger.Error("user stats failed", "user", msg.UserID, "error", err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📊 **Suas Estatísticas:**\n")
	fmt.Fprintf(&sb, "👤 Usuário: %s\n", st.Username)
	fmt.Fprintf(&sb, "💬 Total de mensagens: %d\n", st.MessageCount)
	fmt.Fprintf(&sb, "🕐 Última interação: %s", st.LastInteraction.Format("2006-01-02 15:04:05"))
	return []string{sb.String()}
}

func (h *Handler) globalStats() []string {
	g, err := h.storage.GlobalStats()
	if err != nil {
		h.logger.Error("global stats failed", "error", err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📊 **Estatísticas Globais do Bot:**\n")
	fmt.Fprintf(&sb, "👥 Total de usuários: %d\n", g.TotalUsers)
	fmt.Fprintf(&sb, "💬 Total de mensagens: %d\n", g.TotalMessages)
	fmt.Fprintf(&sb, "📨 Mensagens de usuários: %d\n", g.UserMessages)
	fmt.Fprintf(&sb, "🤖 Respostas do bot: %d", g.BotResponses)
	return []string{sb.String()}
}

func (h *Handler) addDocument(ctx context.Context, msg bus.InboundMessage, text string) []string {
	if text == "" {
		return []string{"❌ Use: `!adicionar <texto do documento>`"}
	}

	metadata := map[string]string{
		"author":    msg.Username,
		"author_id": msg.UserID,
	}
	docID, ok := h.retriever.AddDocument(ctx, text, metadata, "")
	if !ok {
		return []string{"❌ Erro ao adicionar documento. Tente novamente mais tarde."}
	}
	return []string{fmt.Sprintf("✅ Documento adicionado à base de conhecimento!\nID: `%s`", docID)}
}

func (h *Handler) searchDocuments(ctx context.Context, query string) []string {
	if query == "" {
		return []string{"❌ Use: `!buscar <termo de busca>`"}
	}

	hits := h.retriever.SearchSimilar(ctx, query, 3, "")
	if len(hits) == 0 {
		return []string{"❌ Nenhum documento encontrado."}
	}

	var sb strings.Builder
	sb.WriteString("🔍 **Documentos Encontrados:**\n\n")
	for i, hit := range hits {
		preview := hit.Text
		if runes := []rune(preview); len(runes) > searchPreviewLen {
			preview = string(runes[:searchPreviewLen]) + "..."
		}
		fmt.Fprintf(&sb, "**%d.** %s\n\n", i+1, preview)
	}
	return []string{strings.TrimSuffix(sb.String(), "\n\n")}
}

func (h *Handler) ragStats() []string {
	count := h.retriever.CountDocuments("")
	collections := h.retriever.ListCollections()

	var sb strings.Builder
	sb.WriteString("📚 **Estatísticas do RAG:**\n")
	fmt.Fprintf(&sb, "📄 Total de documentos: %d\n", count)
	if len(collections) == 0 {
		sb.WriteString("📁 Coleções: nenhuma")
	} else {
		fmt.Fprintf(&sb, "📁 Coleções: %s", strings.Join(collections, ", "))
	}
	return []string{sb.String()}
}

func (h *Handler) clearRAG() []string {
	if !h.retriever.DeleteAllDocuments("") {
		return []string{"❌ Erro ao limpar a base de conhecimento."}
	}
	return []string{"✅ Base de conhecimento limpa!"}
}
