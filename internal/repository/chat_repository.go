package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatdeck/api/internal/ids"
	"chatdeck/api/internal/models"
)

var ErrSessionNotFound = errors.New("chat session not found")

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

// Rebind switches a session's completion mode alongside an append or an
// attachment change. AssistantRef must be empty exactly when Mode is freeform.
type Rebind struct {
	Mode         models.CompletionMode
	AssistantRef string
}

type AppendParams struct {
	UserID    string
	SessionID string
	Prompt    string
	Response  string
}

// CreateSession inserts a new session together with its first exchange in one
// transaction. Session ids are freshly minted, so there is no create/append
// race to recover from: a retry simply creates another insert.
func (r *ChatRepository) CreateSession(ctx context.Context, userID, prompt, response string) (string, error) {
	sessionID := ids.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSession = `
		INSERT INTO chat_sessions (id, user_id, completion_mode, assistant_ref, created_at, updated_at)
		VALUES ($1, $2, $3, '', NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertSession, sessionID, userID, models.ModeFreeform); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	const insertExchange = `
		INSERT INTO chat_exchanges (session_id, seq, prompt, response, created_at)
		VALUES ($1, 1, $2, $3, NOW())
	`
	if _, err := tx.Exec(ctx, insertExchange, sessionID, prompt, response); err != nil {
		return "", fmt.Errorf("insert exchange: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return sessionID, nil
}

// AppendExchange adds one prompt/response pair to an existing session. The
// session row is locked for the duration of the transaction, which serializes
// concurrent appends against the same session; appends to distinct sessions
// touch distinct rows and never interfere.
func (r *ChatRepository) AppendExchange(ctx context.Context, p AppendParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM chat_sessions WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		p.SessionID, p.UserID,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}

	const insertExchange = `
		INSERT INTO chat_exchanges (session_id, seq, prompt, response, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, NOW()
		FROM chat_exchanges WHERE session_id = $1
	`
	if _, err := tx.Exec(ctx, insertExchange, p.SessionID, p.Prompt, p.Response); err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, p.SessionID,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetSession(ctx context.Context, userID, sessionID string) (models.ChatSession, error) {
	const query = `
		SELECT id, user_id, completion_mode, assistant_ref, created_at, updated_at
		FROM chat_sessions WHERE id = $1 AND user_id = $2
	`

	var session models.ChatSession
	err := r.pool.QueryRow(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.Mode,
		&session.AssistantRef,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChatSession{}, ErrSessionNotFound
		}
		return models.ChatSession{}, err
	}

	attachments, err := r.listAttachments(ctx, sessionID)
	if err != nil {
		return models.ChatSession{}, err
	}
	session.Attachments = attachments

	return session, nil
}

func (r *ChatRepository) ListExchanges(ctx context.Context, userID, sessionID string) ([]models.Exchange, error) {
	if _, err := r.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	const query = `
		SELECT seq, prompt, response, created_at
		FROM chat_exchanges WHERE session_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		if err := rows.Scan(&ex.Seq, &ex.Prompt, &ex.Response, &ex.CreatedAt); err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func (r *ChatRepository) ListSessions(ctx context.Context, userID string) ([]models.SessionHistory, error) {
	const query = `
		SELECT s.id, e.seq, e.prompt, e.response, e.created_at
		FROM chat_sessions s
		LEFT JOIN chat_exchanges e ON e.session_id = s.id
		WHERE s.user_id = $1
		ORDER BY s.created_at, s.id, e.seq
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scanned []historyRow
	for rows.Next() {
		var (
			row historyRow
			seq *int
			ex  models.Exchange
		)
		if err := rows.Scan(&row.sessionID, &seq, &ex.Prompt, &ex.Response, &ex.CreatedAt); err != nil {
			return nil, err
		}
		if seq != nil {
			ex.Seq = *seq
			row.exchange = &ex
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupHistory(scanned), nil
}

type historyRow struct {
	sessionID string
	exchange  *models.Exchange
}

// groupHistory folds joined rows into one entry per session, in first-seen
// row order. Sessions sharing a created_at timestamp must not split into
// duplicate entries, so grouping is keyed rather than adjacency-based.
func groupHistory(rows []historyRow) []models.SessionHistory {
	index := make(map[string]int, len(rows))
	var history []models.SessionHistory
	for _, row := range rows {
		i, ok := index[row.sessionID]
		if !ok {
			i = len(history)
			index[row.sessionID] = i
			history = append(history, models.SessionHistory{SessionID: row.sessionID})
		}
		if row.exchange != nil {
			history[i].Exchanges = append(history[i].Exchanges, *row.exchange)
		}
	}
	return history
}

func (r *ChatRepository) DeleteAllSessions(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE user_id = $1`, userID)
	return err
}

// AddAttachment registers a file on the session and rebinds the assistant
// reference in the same transaction.
func (r *ChatRepository) AddAttachment(ctx context.Context, userID, sessionID string, att models.Attachment, rebind Rebind) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSession(ctx, tx, userID, sessionID); err != nil {
		return err
	}
	if err := insertAttachment(ctx, tx, sessionID, att); err != nil {
		return err
	}
	if err := updateMode(ctx, tx, sessionID, rebind); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RemoveAttachment deletes the named file from the session and applies the
// resulting mode in the same transaction. It returns the removed row so the
// caller can clean up provider- and object-store-side copies.
func (r *ChatRepository) RemoveAttachment(ctx context.Context, userID, sessionID, fileName string, rebind Rebind) (models.Attachment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSession(ctx, tx, userID, sessionID); err != nil {
		return models.Attachment{}, err
	}

	const del = `
		DELETE FROM chat_attachments
		WHERE session_id = $1 AND file_name = $2
		RETURNING session_id, file_name, provider_file_id, object_key, created_at
	`
	var removed models.Attachment
	err = tx.QueryRow(ctx, del, sessionID, fileName).Scan(
		&removed.SessionID,
		&removed.FileName,
		&removed.ProviderFileID,
		&removed.ObjectKey,
		&removed.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Attachment{}, ErrAttachmentNotFound
		}
		return models.Attachment{}, fmt.Errorf("delete attachment: %w", err)
	}

	if err := updateMode(ctx, tx, sessionID, rebind); err != nil {
		return models.Attachment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Attachment{}, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

var ErrAttachmentNotFound = errors.New("attachment not found")

// ReferencedObjectKeys reports which of the given object-store keys are still
// referenced by an attachment row. Used by the orphan sweep job.
func (r *ChatRepository) ReferencedObjectKeys(ctx context.Context, keys []string) (map[string]struct{}, error) {
	if len(keys) == 0 {
		return map[string]struct{}{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT object_key FROM chat_attachments WHERE object_key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	referenced := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		referenced[key] = struct{}{}
	}
	return referenced, rows.Err()
}

// ProviderResources collects every provider-side handle owned by the user's
// sessions, for cleanup ahead of an account deletion.
func (r *ChatRepository) ProviderResources(ctx context.Context, userID string) (assistantRefs []string, fileIDs []string, objectKeys []string, err error) {
	rows, err := r.pool.Query(ctx,
		`SELECT assistant_ref FROM chat_sessions WHERE user_id = $1 AND assistant_ref <> ''`, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, nil, nil, err
		}
		assistantRefs = append(assistantRefs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	fileRows, err := r.pool.Query(ctx, `
		SELECT a.provider_file_id, a.object_key
		FROM chat_attachments a
		JOIN chat_sessions s ON s.id = a.session_id
		WHERE s.user_id = $1
	`, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var fileID, objectKey string
		if err := fileRows.Scan(&fileID, &objectKey); err != nil {
			return nil, nil, nil, err
		}
		fileIDs = append(fileIDs, fileID)
		objectKeys = append(objectKeys, objectKey)
	}
	return assistantRefs, fileIDs, objectKeys, fileRows.Err()
}

func (r *ChatRepository) listAttachments(ctx context.Context, sessionID string) ([]models.Attachment, error) {
	const query = `
		SELECT session_id, file_name, provider_file_id, object_key, created_at
		FROM chat_attachments WHERE session_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.SessionID, &att.FileName, &att.ProviderFileID, &att.ObjectKey, &att.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

func lockSession(ctx context.Context, tx pgx.Tx, userID, sessionID string) error {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM chat_sessions WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		sessionID, userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}
	return nil
}

func insertAttachment(ctx context.Context, tx pgx.Tx, sessionID string, att models.Attachment) error {
	const query = `
		INSERT INTO chat_attachments (session_id, file_name, provider_file_id, object_key, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (session_id, file_name) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, sessionID, att.FileName, att.ProviderFileID, att.ObjectKey); err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func updateMode(ctx context.Context, tx pgx.Tx, sessionID string, rebind Rebind) error {
	const query = `
		UPDATE chat_sessions
		SET completion_mode = $2, assistant_ref = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, sessionID, rebind.Mode, rebind.AssistantRef); err != nil {
		return fmt.Errorf("update mode: %w", err)
	}
	return nil
}
