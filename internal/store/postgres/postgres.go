package postgres

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
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/voxrelay/voxrelay/internal/model"
	"github.com/voxrelay/voxrelay/internal/store"
)

//go:embed schema.sql
var ddlFile string

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

// ApplyDDL executes the embedded schema statements. Production deployments
// run migrations out of band; this is used by tests and local bootstrap.
func ApplyDDL(ctx context.Context, db *sql.DB) error {
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

type pgStore struct{ db *sql.DB }

func (s *pgStore) Conversations() store.Conversations { return &conversations{db: s.db} }
func (s *pgStore) Messages() store.Messages           { return &messages{db: s.db} }
func (s *pgStore) Settings() store.Settings           { return &settings{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a Postgres FK-constraint error.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
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
	title := defaultTitle(time.Now().UTC())
	ctxJSON, _ := json.Marshal(metadata)

	var created, updated time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO conversations (conversation_id, owner_id, session_id, title, context)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at
    `, id, ownerID, sessionID, title, nullIfEmpty(ctxJSON))
	if err := row.Scan(&created, &updated); err != nil {
		// Someone else created the active conversation first; re-read.
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
		CreationTime:   created,
		UpdateTime:     updated,
	}, nil
}

func (c *conversations) GetActive(ctx context.Context, sessionID string) (*model.Conversation, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations WHERE session_id=$1 AND is_active
    `, sessionID)
	return scanConversation(row)
}

func (c *conversations) SetSummary(ctx context.Context, conversationID, summary string) error {
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET summary=$1, updated_at=now() WHERE conversation_id=$2
    `, summary, conversationID)
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
        UPDATE conversations SET context=$1, updated_at=now() WHERE conversation_id=$2
    `, nullIfEmpty(ctxJSON), conversationID)
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
        UPDATE conversations SET is_active=FALSE, updated_at=now()
        WHERE session_id=$1 AND is_active
    `, sessionID)
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

	id := uuid.New().String()
	tokens := model.EstimateTokens(msg.Content)
	metaJSON, _ := json.Marshal(msg.Metadata)

	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, conversation_id, role, message_type, content, tokens_used, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at
    `, id, msg.ConversationID, string(msg.Role), string(msg.MessageType), msg.Content, tokens, nullIfEmpty(metaJSON))
	if err := row.Scan(&created); err != nil {
		if isForeignKeyViolation(err) {
			return nil, 0, model.ErrNotFound
		}
		return nil, 0, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE conversations SET updated_at=now() WHERE conversation_id=$1
    `, msg.ConversationID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages WHERE conversation_id=$1
    `, msg.ConversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	out := *msg
	out.MessageID = id
	out.TokensUsed = tokens
	out.CreationTime = created
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
        FROM messages WHERE conversation_id=$1
        ORDER BY seq DESC`
	args := []interface{}{conv.ConversationID}
	if limit > 0 {
		query += ` LIMIT $2`
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
        SELECT COUNT(*) FROM messages WHERE conversation_id=$1
    `, conversationID).Scan(&n)
	return n, err
}

// --- Settings ---

type settings struct{ db *sql.DB }

const settingsColumns = `user_id, max_conversation_history, context_window_size, auto_summarize_after,
        memory_retention_days, preferred_response_style, auto_summary_enabled, context_awareness_enabled,
        retain_voice_transcriptions, personalization_enabled, created_at, updated_at`

func (s *settings) GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error) {
	got, err := s.get(ctx, userID)
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	def := model.DefaultSettings(userID)
	// DO NOTHING keeps first-writer-wins under concurrent lazy creation.
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO user_settings (user_id, max_conversation_history, context_window_size, auto_summarize_after,
            memory_retention_days, preferred_response_style, auto_summary_enabled, context_awareness_enabled,
            retain_voice_transcriptions, personalization_enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id) DO NOTHING
    `, def.UserID, def.MaxConversationHistory, def.ContextWindowSize, def.AutoSummarizeAfter,
		def.MemoryRetentionDays, def.PreferredResponseStyle, def.AutoSummaryEnabled, def.ContextAwarenessEnabled,
		def.RetainVoiceTranscriptions, def.PersonalizationEnabled); err != nil {
		return nil, err
	}
	return s.get(ctx, userID)
}

func (s *settings) Update(ctx context.Context, us *model.UserSettings) (*model.UserSettings, error) {
	var updated time.Time
	row := s.db.QueryRowContext(ctx, `
        UPDATE user_settings SET max_conversation_history=$2, context_window_size=$3, auto_summarize_after=$4,
            memory_retention_days=$5, preferred_response_style=$6, auto_summary_enabled=$7,
            context_awareness_enabled=$8, retain_voice_transcriptions=$9, personalization_enabled=$10,
            updated_at=now()
        WHERE user_id=$1
        RETURNING updated_at
    `, us.UserID, us.MaxConversationHistory, us.ContextWindowSize, us.AutoSummarizeAfter,
		us.MemoryRetentionDays, us.PreferredResponseStyle, us.AutoSummaryEnabled, us.ContextAwarenessEnabled,
		us.RetainVoiceTranscriptions, us.PersonalizationEnabled)
	if err := row.Scan(&updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	out := *us
	out.UpdateTime = updated
	return &out, nil
}

func (s *settings) get(ctx context.Context, userID string) (*model.UserSettings, error) {
	var out model.UserSettings
	row := s.db.QueryRowContext(ctx, `
        SELECT `+settingsColumns+` FROM user_settings WHERE user_id=$1
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
	var summary sql.NullString
	var ctxJSON sql.NullString
	if err := row.Scan(&out.ConversationID, &out.OwnerID, &out.SessionID, &out.Title,
		&summary, &ctxJSON, &out.IsActive, &out.CreationTime, &out.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
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

func defaultTitle(t time.Time) string {
	return "Conversation " + t.Format("2006-01-02")
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
