package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/repositories"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// SQLClient is a database handle with its goqu dialect name ("postgres" or "sqlite3").
type SQLClient interface {
	DB() *sql.DB
	Dialect() string
}

// ConversationAdapter implements ConversationRepository on Postgres or SQLite.
type ConversationAdapter struct {
	client  SQLClient
	db      *goqu.Database
	metrics *observability.Metrics
}

// NewConversationAdapter creates a new conversation adapter. metrics may be nil.
func NewConversationAdapter(client SQLClient, metrics *observability.Metrics) *ConversationAdapter {
	return &ConversationAdapter{
		client:  client,
		db:      goqu.New(client.Dialect(), client.DB()),
		metrics: metrics,
	}
}

var _ repositories.ConversationRepository = (*ConversationAdapter)(nil)

// EnsureSchema creates the conversation tables when they do not exist yet.
func (a *ConversationAdapter) EnsureSchema(ctx context.Context) error {
	name := "schema/postgres.sql"
	if a.client.Dialect() == "sqlite3" {
		name = "schema/sqlite.sql"
	}
	ddl, err := schemaFS.ReadFile(name)
	if err != nil {
		return apperrors.NewInternalError("failed to read schema", err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := a.client.DB().ExecContext(ctx, stmt); err != nil {
			return apperrors.NewInternalError("failed to apply schema", err)
		}
	}
	return nil
}

// CreateConversation inserts a conversation
func (a *ConversationAdapter) CreateConversation(ctx context.Context, conversation *entities.Conversation) error {
	defer a.observe(ctx, "conversation.create", time.Now())

	record := goqu.Record{
		"id":         conversation.ID,
		"owner_id":   conversation.OwnerID,
		"title":      conversation.Title,
		"created_at": conversation.CreatedAt,
		"updated_at": conversation.UpdatedAt,
	}

	query, args, err := a.db.Insert("conversations").Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build conversation insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create conversation", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (a *ConversationAdapter) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	defer a.observe(ctx, "conversation.get", time.Now())

	query, args, err := a.db.Select("id", "owner_id", "title", "created_at", "updated_at").
		From("conversations").
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	c := &entities.Conversation{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("conversation with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get conversation", err)
	}
	return c, nil
}

// ListConversations returns an owner's conversations, most recently active first
func (a *ConversationAdapter) ListConversations(ctx context.Context, ownerID string, limit int) ([]*entities.Conversation, error) {
	defer a.observe(ctx, "conversation.list", time.Now())

	ds := a.db.Select("id", "owner_id", "title", "created_at", "updated_at").
		From("conversations").
		Where(goqu.Ex{"owner_id": ownerID}).
		Order(goqu.I("updated_at").Desc(), goqu.I("id").Asc()).
		Prepared(true)
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list conversations", err)
	}
	defer rows.Close()

	var out []*entities.Conversation
	for rows.Next() {
		c := &entities.Conversation{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan conversation", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list conversations", err)
	}
	return out, nil
}

// AppendMessage stores a message with the next sequence number. The
// conversation row is updated first, which also locks it in Postgres so
// concurrent appends from several replicas are serialised.
func (a *ConversationAdapter) AppendMessage(ctx context.Context, message *entities.Message) (err error) {
	defer a.observe(ctx, "message.append", time.Now())

	tx, err := a.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := a.db.Update("conversations").
		Set(goqu.Record{"updated_at": message.CreatedAt}).
		Where(goqu.Ex{"id": message.ConversationID}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to touch conversation", err)
	}
	if n, rowsErr := res.RowsAffected(); rowsErr == nil && n == 0 {
		err = apperrors.NewNotFoundError(fmt.Sprintf("conversation with id %s not found", message.ConversationID))
		return err
	}

	query, args, err = a.db.From("messages").
		Select(goqu.COALESCE(goqu.MAX("sequence"), 0)).
		Where(goqu.Ex{"conversation_id": message.ConversationID}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build sequence query", err)
	}
	var last int64
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return apperrors.NewInternalError("failed to read message sequence", err)
	}
	message.Sequence = last + 1

	record := goqu.Record{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"role":            string(message.Role),
		"content":         message.Content,
		"provider":        nullString(message.Provider),
		"model":           nullString(message.Model),
		"sequence":        message.Sequence,
		"created_at":      message.CreatedAt,
	}
	query, args, err = a.db.Insert("messages").Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build message insert query", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to append message", err)
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit message", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in sequence order
func (a *ConversationAdapter) ListMessages(ctx context.Context, conversationID string) ([]*entities.Message, error) {
	defer a.observe(ctx, "message.list", time.Now())

	query, args, err := a.db.Select("id", "conversation_id", "role", "content", "provider", "model", "sequence", "created_at").
		From("messages").
		Where(goqu.Ex{"conversation_id": conversationID}).
		Order(goqu.I("sequence").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list messages", err)
	}
	defer rows.Close()

	var out []*entities.Message
	for rows.Next() {
		m := &entities.Message{}
		var role string
		var provider, model sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &provider, &model, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan message", err)
		}
		m.Role = entities.Role(role)
		if provider.Valid {
			value := provider.String
			m.Provider = &value
		}
		if model.Valid {
			value := model.String
			m.Model = &value
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list messages", err)
	}
	return out, nil
}

func (a *ConversationAdapter) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, a.metrics, operation, time.Since(start))
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
