package db

import (
	"fmt"
	"time"

	"gleaner/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// SaveChatMessage appends one turn to an article's conversation.
func (db *DB) SaveChatMessage(articleID int64, role string, content string) error {
	insert := sqlbuilder.NewInsertBuilder()
	insert.InsertInto("chat_messages").
		Cols("article_id", "role", "content", "created_at").
		Values(articleID, role, content, time.Now().Unix())

	query, args := insert.BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := db.writes.Exec(query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// GetChatHistory returns the stored conversation for an article, oldest
// message first.
func (db *DB) GetChatHistory(articleID int64) ([]models.ChatMessage, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("role", "content", "created_at").From("chat_messages")
	sb.Where(sb.Equal("article_id", articleID))
	sb.OrderBy("id").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := db.reads.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var message models.ChatMessage
		var created int64
		if err := rows.Scan(&message.Role, &message.Content, &created); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		message.CreatedAt = time.Unix(created, 0).UTC()
		messages = append(messages, message)
	}

	return messages, rows.Err()
}
