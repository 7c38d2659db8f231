package db

import (
	"fmt"
	"time"

	"gleaner/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// SaveSummary appends a summary version for an article. Failed attempts
// are stored too, flagged with isError, so the UI can show what went
// wrong without losing an earlier good summary.
func (db *DB) SaveSummary(articleID int64, content string, model string, isError bool) error {
	insert := sqlbuilder.NewInsertBuilder()
	insert.InsertInto("summaries").
		Cols("article_id", "content", "model", "is_error", "created_at").
		Values(articleID, content, model, isError, time.Now().Unix())

	query, args := insert.BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := db.writes.Exec(query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// CurrentSummary returns the summary to display for an article: the most
// recent successful one, or the most recent attempt when every attempt
// failed. The bool reports whether any summary exists.
func (db *DB) CurrentSummary(articleID int64) (models.Summary, bool, error) {
	summaries, err := db.currentSummaries([]int64{articleID})
	if err != nil {
		return models.Summary{}, false, err
	}

	summary, ok := summaries[articleID]
	return summary, ok, nil
}

func (db *DB) currentSummaries(articleIDs []int64) (map[int64]models.Summary, error) {
	current := map[int64]models.Summary{}
	if len(articleIDs) == 0 {
		return current, nil
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "article_id", "content", "model", "is_error", "created_at").From("summaries")
	sb.Where(sb.In("article_id", sqlbuilder.Flatten(articleIDs)...))
	sb.OrderBy("id").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := db.reads.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var summary models.Summary
		var created int64
		if err := rows.Scan(&summary.ID, &summary.ArticleID, &summary.Content, &summary.Model, &summary.IsError, &created); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		summary.CreatedAt = time.Unix(created, 0).UTC()

		previous, seen := current[summary.ArticleID]
		// Later rows win, but a failed attempt never replaces an earlier
		// successful summary.
		if !seen || !summary.IsError || previous.IsError {
			current[summary.ArticleID] = summary
		}
	}

	return current, rows.Err()
}
