package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voxrelay/voxrelay/internal/model"
	"github.com/voxrelay/voxrelay/internal/store"
)

//go:embed schema.sql
var ddlFile string

// Open opens (or creates) a SQLite database file and applies the schema.
// Foreign keys are enabled per connection so message cascade works.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc sqlite is single-writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if err := applyDDL(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a SQLite store over an existing connection.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

func applyDDL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddlFile, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Conversations() store.Conversations { return &conversations{db: s.db} }
func (s *sqliteStore) Messages() store.Messages           { return &messages{db: s.db} }
func (s *sqliteStore) Settings() store.Settings           { return &settings{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint")
}

// --- Conversations ---

type conversations struct{ db *sql.DB }

const conversationColumns = `conversation_id, owner_id, session_id, title, summary, context, is_active, created_at, updated_at`

func (c *conversations) GetOrCreate(ctx context.Context, sessionID, ownerID string, metadata map[string]interface{}) (*model.Conversation, error) {
	conv, err := c.GetActive(ctx, sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	title := "Conversation " + now.Format("2006-01-02")
	ctxJSON, _ := json.Marshal(metadata)

	_, err = c.db.ExecContext(ctx, `
        INSERT INTO conversations (conversation_id, owner_id, session_id, title, context, is_active, created_at, updated_at)
        VALUES (?,?,?,?,?,1,?,?)
    `, id, ownerID, sessionID, title, nullIfEmpty(ctxJSON), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return c.GetActive(ctx, sessionID)
		}
		return nil, err
	}
	return &model.Conversation{
		ConversationID: id,
		OwnerID:        ownerID,
		SessionID:      sessionID,
		Title:          title,
		Context:        metadata,
		IsActive:       true,
		CreationTime:   now,
		UpdateTime:     now,
	}, nil
}

func (c *conversations) GetActive(ctx context.Context, sessionID string) (*model.Conversation, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations WHERE session_id = ? AND is_active = 1
    `, sessionID)
	return scanConversation(row)
}

func (c *conversations) SetSummary(ctx context.Context, conversationID, summary string) error {
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET summary = ?, updated_at = ? WHERE conversation_id = ?
    `, summary, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *conversations) SetContext(ctx context.Context, conversationID string, contextMap map[string]interface{}) error {
	ctxJSON, _ := json.Marshal(contextMap)
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET context = ?, updated_at = ? WHERE conversation_id = ?
    `, nullIfEmpty(ctxJSON), time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *conversations) Deactivate(ctx context.Context, sessionID string) error {
	_, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET is_active = 0, updated_at = ?
        WHERE session_id = ? AND is_active = 1
    `, time.Now().UTC(), sessionID)
	return err
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Append(ctx context.Context, msg *model.Message) (*model.Message, int, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
        SELECT 1 FROM conversations WHERE conversation_id = ?
    `, msg.ConversationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, model.ErrNotFound
		}
		return nil, 0, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	tokens := model.EstimateTokens(msg.Content)
	metaJSON, _ := json.Marshal(msg.Metadata)

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO messages (message_id, conversation_id, role, message_type, content, tokens_used, metadata, created_at)
        VALUES (?,?,?,?,?,?,?,?)
    `, id, msg.ConversationID, string(msg.Role), string(msg.MessageType), msg.Content, tokens, nullIfEmpty(metaJSON), now); err != nil {
		if isForeignKeyViolation(err) {
			return nil, 0, model.ErrNotFound
		}
		return nil, 0, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE conversations SET updated_at = ? WHERE conversation_id = ?
    `, now, msg.ConversationID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages WHERE conversation_id = ?
    `, msg.ConversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	out := *msg
	out.MessageID = id
	out.TokensUsed = tokens
	out.CreationTime = now
	return &out, total, nil
}

func (m *messages) Recent(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	convs := &conversations{db: m.db}
	conv, err := convs.GetActive(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return []*model.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	query := `
        SELECT message_id, conversation_id, role, message_type, content, tokens_used, metadata, created_at
        FROM messages WHERE conversation_id = ?
        ORDER BY rowid DESC`
	args := []interface{}{conv.ConversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (m *messages) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages WHERE conversation_id = ?
    `, conversationID).Scan(&n)
	return n, err
}

// --- Settings ---

type settings struct{ db *sql.DB }

func (s *settings) GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error) {
	got, err := s.get(ctx, userID)
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	def := model.DefaultSettings(userID)
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO user_settings (user_id, max_conversation_history, context_window_size,
            auto_summarize_after, memory_retention_days, preferred_response_style, auto_summary_enabled,
            context_awareness_enabled, retain_voice_transcriptions, personalization_enabled, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
    `, def.UserID, def.MaxConversationHistory, def.ContextWindowSize, def.AutoSummarizeAfter,
		def.MemoryRetentionDays, def.PreferredResponseStyle, def.AutoSummaryEnabled, def.ContextAwarenessEnabled,
		def.RetainVoiceTranscriptions, def.PersonalizationEnabled, now, now); err != nil {
		return nil, err
	}
	return s.get(ctx, userID)
}

func (s *settings) Update(ctx context.Context, us *model.UserSettings) (*model.UserSettings, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
        UPDATE user_settings SET max_conversation_history = ?, context_window_size = ?, auto_summarize_after = ?,
            memory_retention_days = ?, preferred_response_style = ?, auto_summary_enabled = ?,
            context_awareness_enabled = ?, retain_voice_transcriptions = ?, personalization_enabled = ?,
            updated_at = ?
        WHERE user_id = ?
    `, us.MaxConversationHistory, us.ContextWindowSize, us.AutoSummarizeAfter,
		us.MemoryRetentionDays, us.PreferredResponseStyle, us.AutoSummaryEnabled,
		us.ContextAwarenessEnabled, us.RetainVoiceTranscriptions, us.PersonalizationEnabled,
		now, us.UserID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	out := *us
	out.UpdateTime = now
	return &out, nil
}

func (s *settings) get(ctx context.Context, userID string) (*model.UserSettings, error) {
	var out model.UserSettings
	row := s.db.QueryRowContext(ctx, `
        SELECT user_id, max_conversation_history, context_window_size, auto_summarize_after,
               memory_retention_days, preferred_response_style, auto_summary_enabled,
               context_awareness_enabled, retain_voice_transcriptions, personalization_enabled,
               created_at, updated_at
        FROM user_settings WHERE user_id = ?
    `, userID)
	if err := row.Scan(&out.UserID, &out.MaxConversationHistory, &out.ContextWindowSize, &out.AutoSummarizeAfter,
		&out.MemoryRetentionDays, &out.PreferredResponseStyle, &out.AutoSummaryEnabled, &out.ContextAwarenessEnabled,
		&out.RetainVoiceTranscriptions, &out.PersonalizationEnabled, &out.CreationTime, &out.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// --- helpers ---

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var out model.Conversation
	var summary, ctxJSON sql.NullString
	var active int
	if err := row.Scan(&out.ConversationID, &out.OwnerID, &out.SessionID, &out.Title,
		&summary, &ctxJSON, &active, &out.CreationTime, &out.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	out.IsActive = active == 1
	if summary.Valid {
		out.Summary = &summary.String
	}
	if ctxJSON.Valid {
		_ = json.Unmarshal([]byte(ctxJSON.String), &out.Context)
	}
	return &out, nil
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var out model.Message
	var role, msgType string
	var meta sql.NullString
	if err := row.Scan(&out.MessageID, &out.ConversationID, &role, &msgType,
		&out.Content, &out.TokensUsed, &meta, &out.CreationTime); err != nil {
		return nil, err
	}
	out.Role = model.Role(role)
	out.MessageType = model.MessageType(msgType)
	if meta.Valid {
		_ = json.Unmarshal([]byte(meta.String), &out.Metadata)
	}
	return &out, nil
}

func reverse(msgs []*model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func nullIfEmpty(b []byte) interface{} {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}
