// Package storetest provides a compliance suite shared by every
// store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/voxrelay/voxrelay/internal/model"
	"github.com/voxrelay/voxrelay/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	t.Run("GetOrCreateRoundTrip", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()

		conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", map[string]interface{}{"source": "test"})
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if conv.ConversationID == "" || !conv.IsActive {
			t.Fatalf("unexpected conversation: %+v", conv)
		}

		again, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate again: %v", err)
		}
		if again.ConversationID != conv.ConversationID {
			t.Fatalf("expected same conversation, got %s vs %s", again.ConversationID, conv.ConversationID)
		}
	})

	t.Run("ConcurrentGetOrCreateYieldsOneConversation", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()

		const callers = 8
		ids := make([]string, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = conv.ConversationID
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			if errs[i] != nil {
				t.Fatalf("caller %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Fatalf("callers resolved to different conversations: %s vs %s", ids[i], ids[0])
			}
		}
	})

	t.Run("AppendAndRecentPreserveOrder", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()
		conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}

		userMsg, n1, err := s.Messages().Append(ctx, &model.Message{
			ConversationID: conv.ConversationID,
			Role:           model.RoleUser,
			Content:        "hello there",
			MessageType:    model.MessageTypeText,
		})
		if err != nil {
			t.Fatalf("Append user: %v", err)
		}
		if n1 != 1 {
			t.Fatalf("count after first append = %d, want 1", n1)
		}
		if userMsg.TokensUsed != model.EstimateTokens("hello there") {
			t.Fatalf("tokensUsed = %d", userMsg.TokensUsed)
		}

		_, n2, err := s.Messages().Append(ctx, &model.Message{
			ConversationID: conv.ConversationID,
			Role:           model.RoleAssistant,
			Content:        "hi, how can I help?",
			MessageType:    model.MessageTypeText,
		})
		if err != nil {
			t.Fatalf("Append assistant: %v", err)
		}
		if n2 != 2 {
			t.Fatalf("count after second append = %d, want 2", n2)
		}

		msgs, err := s.Messages().Recent(ctx, sessionID, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("Recent returned %d messages, want 2", len(msgs))
		}
		if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
			t.Fatalf("roles out of order: %s, %s", msgs[0].Role, msgs[1].Role)
		}
		if msgs[0].Content != "hello there" || msgs[1].Content != "hi, how can I help?" {
			t.Fatalf("content mismatch: %q, %q", msgs[0].Content, msgs[1].Content)
		}
		if msgs[1].CreationTime.Before(msgs[0].CreationTime) {
			t.Fatalf("creation times out of order")
		}

		// Append bumps the conversation update time.
		after, err := s.Conversations().GetActive(ctx, sessionID)
		if err != nil {
			t.Fatalf("GetActive: %v", err)
		}
		if after.UpdateTime.Before(conv.UpdateTime) {
			t.Fatalf("updated_at not bumped: %v < %v", after.UpdateTime, conv.UpdateTime)
		}
	})

	t.Run("RecentHonorsLimitAndOrdering", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()
		conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}

		contents := []string{"one", "two", "three", "four", "five"}
		for _, c := range contents {
			if _, _, err := s.Messages().Append(ctx, &model.Message{
				ConversationID: conv.ConversationID,
				Role:           model.RoleUser,
				Content:        c,
				MessageType:    model.MessageTypeText,
			}); err != nil {
				t.Fatalf("Append %q: %v", c, err)
			}
		}

		msgs, err := s.Messages().Recent(ctx, sessionID, 3)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("Recent returned %d, want 3", len(msgs))
		}
		want := []string{"three", "four", "five"}
		for i, m := range msgs {
			if m.Content != want[i] {
				t.Fatalf("window[%d] = %q, want %q", i, m.Content, want[i])
			}
			if i > 0 && msgs[i].CreationTime.Before(msgs[i-1].CreationTime) {
				t.Fatalf("creation times decrease at %d", i)
			}
		}
	})

	t.Run("RecentWithoutConversationIsEmpty", func(t *testing.T) {
		msgs, err := s.Messages().Recent(ctx, "never-seen-"+uuid.New().String(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(msgs) != 0 {
			t.Fatalf("expected empty window, got %d", len(msgs))
		}
	})

	t.Run("AppendToMissingConversationIsNotFound", func(t *testing.T) {
		_, _, err := s.Messages().Append(ctx, &model.Message{
			ConversationID: uuid.New().String(),
			Role:           model.RoleUser,
			Content:        "orphan",
			MessageType:    model.MessageTypeText,
		})
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeactivateIsIdempotentAndSoft", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()
		conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}

		if err := s.Conversations().Deactivate(ctx, sessionID); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}
		if err := s.Conversations().Deactivate(ctx, sessionID); err != nil {
			t.Fatalf("Deactivate twice: %v", err)
		}
		if _, err := s.Conversations().GetActive(ctx, sessionID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after deactivate, got %v", err)
		}

		// A new turn on the same session starts a fresh conversation.
		fresh, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate after deactivate: %v", err)
		}
		if fresh.ConversationID == conv.ConversationID {
			t.Fatalf("expected a new conversation after deactivate")
		}
	})

	t.Run("SummaryAndContextUpdates", func(t *testing.T) {
		sessionID := "s-" + uuid.New().String()
		conv, err := s.Conversations().GetOrCreate(ctx, sessionID, "u1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}

		if err := s.Conversations().SetSummary(ctx, conv.ConversationID, "20 messages so far"); err != nil {
			t.Fatalf("SetSummary: %v", err)
		}
		if err := s.Conversations().SetContext(ctx, conv.ConversationID, map[string]interface{}{"topic": "roof"}); err != nil {
			t.Fatalf("SetContext: %v", err)
		}

		got, err := s.Conversations().GetActive(ctx, sessionID)
		if err != nil {
			t.Fatalf("GetActive: %v", err)
		}
		if got.Summary == nil || *got.Summary != "20 messages so far" {
			t.Fatalf("summary not stored: %v", got.Summary)
		}
		if got.Context["topic"] != "roof" {
			t.Fatalf("context not stored: %v", got.Context)
		}

		if err := s.Conversations().SetSummary(ctx, uuid.New().String(), "x"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown conversation, got %v", err)
		}
	})

	t.Run("SettingsLazyCreationIsIdempotent", func(t *testing.T) {
		userID := "u-" + uuid.New().String()

		first, err := s.Settings().GetOrCreate(ctx, userID)
		if err != nil {
			t.Fatalf("GetOrCreateSettings: %v", err)
		}
		if first.ContextWindowSize != 10 || first.AutoSummarizeAfter != 20 {
			t.Fatalf("unexpected defaults: %+v", first)
		}

		second, err := s.Settings().GetOrCreate(ctx, userID)
		if err != nil {
			t.Fatalf("GetOrCreateSettings again: %v", err)
		}
		if second.UserID != first.UserID || !second.CreationTime.Equal(first.CreationTime) {
			t.Fatalf("settings not idempotent: %+v vs %+v", first, second)
		}

		second.ContextWindowSize = 4
		updated, err := s.Settings().Update(ctx, second)
		if err != nil {
			t.Fatalf("UpdateSettings: %v", err)
		}
		if updated.ContextWindowSize != 4 {
			t.Fatalf("update not applied: %+v", updated)
		}

		got, err := s.Settings().GetOrCreate(ctx, userID)
		if err != nil {
			t.Fatalf("GetOrCreateSettings after update: %v", err)
		}
		if got.ContextWindowSize != 4 {
			t.Fatalf("update not persisted: %+v", got)
		}
	})
}
