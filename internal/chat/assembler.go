package chat

import (
	"context"

	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/store"
)

// Assembler builds the exact ordered message list handed to the completion
// gateway: [system prompt] + [up to N most recent stored messages,
// oldest first] + [new user message].
//
// Assembly is deterministic: the same stored history and utterance always
// produce a byte-identical list. Message content is passed through whole;
// token-limit failures surface as gateway errors rather than being
// pre-empted by truncation here.
type Assembler struct {
	store         store.Store
	systemPrompt  string
	defaultWindow int
}

// NewAssembler creates an assembler over the given store. systemPrompt is
// the fixed persona string from configuration; defaultWindow applies when a
// caller does not override the window size.
func NewAssembler(st store.Store, systemPrompt string, defaultWindow int) *Assembler {
	return &Assembler{store: st, systemPrompt: systemPrompt, defaultWindow: defaultWindow}
}

// Assemble reads the session's recent history and composes the completion
// request. window <= 0 selects the configured default.
func (a *Assembler) Assemble(ctx context.Context, sessionID, utterance string, window int) ([]gateway.ChatMessage, error) {
	if window <= 0 {
		window = a.defaultWindow
	}

	history, err := a.store.Messages().Recent(ctx, sessionID, window)
	if err != nil {
		return nil, err
	}

	out := make([]gateway.ChatMessage, 0, len(history)+2)
	out = append(out, gateway.ChatMessage{Role: "system", Content: a.systemPrompt})
	for _, m := range history {
		out = append(out, gateway.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	out = append(out, gateway.ChatMessage{Role: "user", Content: utterance})
	return out, nil
}
