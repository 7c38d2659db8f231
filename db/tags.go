package db

import (
	"fmt"

	"gleaner/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ReplaceArticleTags swaps the tag set of an article. Tag names are
// created on first use and shared between articles.
func (db *DB) ReplaceArticleTags(articleID int64, names []string) error {
	tx, err := db.writes.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM article_tags WHERE article_id = ?", articleID); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	for _, name := range names {
		if _, err := tx.Exec("INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("insert tag error: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO article_tags (article_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, articleID, name); err != nil {
			return fmt.Errorf("link tag error: %w", err)
		}
	}

	return tx.Commit()
}

// ArticleTags returns the tags of a single article sorted by name.
func (db *DB) ArticleTags(articleID int64) ([]models.Tag, error) {
	tags, err := db.tagsForArticles([]int64{articleID})
	if err != nil {
		return nil, err
	}
	if tags[articleID] == nil {
		return []models.Tag{}, nil
	}
	return tags[articleID], nil
}

// ListTags returns all known tags sorted by name.
func (db *DB) ListTags() ([]models.Tag, error) {
	rows, err := db.reads.Query("SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

// tagsForArticles returns the tags of each listed article, sorted by
// name within an article.
func (db *DB) tagsForArticles(articleIDs []int64) (map[int64][]models.Tag, error) {
	tags := map[int64][]models.Tag{}
	if len(articleIDs) == 0 {
		return tags, nil
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("article_tags.article_id", "tags.id", "tags.name").From("article_tags")
	sb.Join("tags", "tags.id = article_tags.tag_id")
	sb.Where(sb.In("article_tags.article_id", sqlbuilder.Flatten(articleIDs)...))
	sb.OrderBy("tags.name").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := db.reads.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID int64
		var tag models.Tag
		if err := rows.Scan(&articleID, &tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		tags[articleID] = append(tags[articleID], tag)
	}

	return tags, rows.Err()
}
