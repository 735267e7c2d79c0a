package channel

import (
	"context"

	"github.com/prosabot/prosa/internal/bus"
)

// Channel is one chat platform connection delivering inbound messages to the
// bus and accepting outbound sends.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// SplitMessage breaks content into sequential chunks of at most limit runes,
// preserving order; concatenating the chunks reconstructs the original text
// exactly. Rune-based so multi-byte text never splits mid-character.
func SplitMessage(content string, limit int) []string {
	runes := []rune(content)
	if len(runes) <= limit {
		return []string{content}
	}

	var chunks []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
