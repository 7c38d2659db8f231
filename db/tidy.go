package db

import (
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// DeleteArticlesOlderThan removes articles published more than the given
// number of days ago and prunes tags that no longer label anything.
// Returns the number of deleted articles.
func (db *DB) DeleteArticlesOlderThan(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()

	deleteArticles := sb.NewDeleteBuilder()
	query, args := deleteArticles.DeleteFrom("articles").
		Where(deleteArticles.LessThan("published_at", cutoff)).
		BuildWithFlavor(sb.SQLite)

	log.WithFields(log.Fields{
		"days":   days,
		"cutoff": time.Unix(cutoff, 0).UTC().Format(time.RFC3339),
	}).Info("Cleaning up old articles")

	res, err := db.writes.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := db.writes.Exec("DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM article_tags)"); err != nil {
		return deleted, fmt.Errorf("tag cleanup error: %w", err)
	}

	return deleted, nil
}
