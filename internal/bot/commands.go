package bot

import "strings"

// Kind enumerates the bot's fixed command vocabulary. Anything that matches
// no literal falls through to the conversational path.
type Kind int

const (
	KindConversation Kind = iota
	KindHelp
	KindClearHistory
	KindStats
	KindGlobalStats
	KindAddDocument
	KindSearch
	KindRAGStats
	KindClearRAG
)

// Command is the result of classifying one inbound message. Arg carries the
// trailing text for KindAddDocument and KindSearch, original casing kept.
type Command struct {
	Kind Kind
	Arg  string
}

// ParseCommand matches the trimmed, mention-stripped text against the
// command literals, case-insensitively, first match wins. Exact-match
// commands compare whole-string, so "!stats" never shadows "!stats_global".
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "!ajuda":
		return Command{Kind: KindHelp}
	case "!limpar":
		return Command{Kind: KindClearHistory}
	case "!stats":
		return Command{Kind: KindStats}
	case "!stats_global":
		return Command{Kind: KindGlobalStats}
	case "!rag_stats":
		return Command{Kind: KindRAGStats}
	case "!limpar_rag":
		return Command{Kind: KindClearRAG}
	}

	if arg, ok := commandArg(trimmed, lower, "!adicionar"); ok {
		return Command{Kind: KindAddDocument, Arg: arg}
	}
	if arg, ok := commandArg(trimmed, lower, "!buscar"); ok {
		return Command{Kind: KindSearch, Arg: arg}
	}

	return Command{Kind: KindConversation, Arg: trimmed}
}

// commandArg matches "<prefix>" or "<prefix> <arg>". A bare prefix yields an
// empty arg, which the handler turns into a usage reply.
func commandArg(trimmed, lower, prefix string) (string, bool) {
	if lower == prefix {
		return "", true
	}
	if strings.HasPrefix(lower, prefix+" ") {
		return strings.TrimSpace(trimmed[len(prefix)+1:]), true
	}
	return "", false
}
