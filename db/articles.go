package db

import (
	"database/sql"
	"fmt"
	"time"

	"gleaner/models"
	"gleaner/query"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

// CreateArticle stores a fetched article. Articles are deduplicated on
// URL, so refetching a feed never produces duplicates. The returned bool
// reports whether a row was actually inserted.
func (db *DB) CreateArticle(article models.Article) (int64, bool, error) {
	insert := sqlbuilder.NewInsertBuilder()
	insert.InsertIgnoreInto("articles").
		Cols("feed_id", "title", "url", "published_at", "content_html", "content_text", "word_count", "language", "created_at").
		Values(
			article.FeedID,
			article.Title,
			article.URL,
			article.PublishedAt.Unix(),
			article.ContentHTML,
			article.ContentText,
			article.WordCount,
			article.Language,
			time.Now().Unix(),
		)

	sql, args := insert.BuildWithFlavor(sqlbuilder.SQLite)
	res, err := db.writes.Exec(sql, args...)
	if err != nil {
		return 0, false, fmt.Errorf("insert error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		// Already stored
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

// GetArticlePage returns one page of processed articles, newest first,
// together with the total number of articles matching the filters.
func (db *DB) GetArticlePage(filters []query.FilterStrategy, page int, pageSize int) ([]models.ProcessedArticle, int, error) {
	total, err := db.countArticles(filters)
	if err != nil {
		return nil, 0, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"articles.id", "articles.feed_id", "feeds.name", "articles.title", "articles.url",
		"articles.published_at", "articles.language", "articles.word_count", "articles.favorite",
	).From("articles")
	sb.Join("feeds", "feeds.id = articles.feed_id")

	for _, filter := range filters {
		filter.ApplyFilter(sb)
	}

	sb.OrderBy("articles.published_at DESC", "articles.id DESC")
	sb.Limit(pageSize).Offset((page - 1) * pageSize)

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := db.reads.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var articles []models.ProcessedArticle
	for rows.Next() {
		var article models.ProcessedArticle
		var published int64
		if err := rows.Scan(
			&article.ID, &article.FeedID, &article.Publisher, &article.Title, &article.URL,
			&published, &article.Language, &article.WordCount, &article.Favorite,
		); err != nil {
			return nil, 0, fmt.Errorf("scan error: %w", err)
		}
		article.PublishedAt = time.Unix(published, 0).UTC()
		article.Tags = []models.Tag{}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	ids := lo.Map(articles, func(article models.ProcessedArticle, _ int) int64 {
		return article.ID
	})

	summaries, err := db.currentSummaries(ids)
	if err != nil {
		return nil, 0, err
	}
	tags, err := db.tagsForArticles(ids)
	if err != nil {
		return nil, 0, err
	}

	for i := range articles {
		if summary, ok := summaries[articles[i].ID]; ok {
			articles[i].Summary = summary.Content
			articles[i].SummaryError = summary.IsError
		}
		if articleTags, ok := tags[articles[i].ID]; ok {
			articles[i].Tags = articleTags
		}
	}

	return articles, total, nil
}

func (db *DB) countArticles(filters []query.FilterStrategy) (int, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)").From("articles")

	for _, filter := range filters {
		filter.ApplyFilter(sb)
	}

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var count int
	if err := db.reads.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count error: %w", err)
	}

	return count, nil
}

// GetArticle returns a single article including its stored content.
// sql.ErrNoRows is passed through for unknown ids.
func (db *DB) GetArticle(id int64) (models.Article, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"articles.id", "articles.feed_id", "feeds.name", "articles.title", "articles.url",
		"articles.published_at", "articles.language", "articles.content_html", "articles.content_text",
		"articles.word_count", "articles.favorite", "articles.created_at",
	).From("articles")
	sb.Join("feeds", "feeds.id = articles.feed_id")
	sb.Where(sb.Equal("articles.id", id))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var article models.Article
	var published, created int64
	err := db.reads.QueryRow(query, args...).Scan(
		&article.ID, &article.FeedID, &article.Publisher, &article.Title, &article.URL,
		&published, &article.Language, &article.ContentHTML, &article.ContentText,
		&article.WordCount, &article.Favorite, &created,
	)
	if err != nil {
		return models.Article{}, err
	}

	article.PublishedAt = time.Unix(published, 0).UTC()
	article.FetchedAt = time.Unix(created, 0).UTC()

	return article, nil
}

// GetProcessedArticle assembles the display card for a single article.
// sql.ErrNoRows is passed through for unknown ids.
func (db *DB) GetProcessedArticle(id int64) (models.ProcessedArticle, error) {
	stored, err := db.GetArticle(id)
	if err != nil {
		return models.ProcessedArticle{}, err
	}

	article := models.ProcessedArticle{
		ID:          stored.ID,
		FeedID:      stored.FeedID,
		Title:       stored.Title,
		URL:         stored.URL,
		Publisher:   stored.Publisher,
		Language:    stored.Language,
		PublishedAt: stored.PublishedAt,
		WordCount:   stored.WordCount,
		Favorite:    stored.Favorite,
		Tags:        []models.Tag{},
	}

	if summary, ok, err := db.CurrentSummary(id); err != nil {
		return models.ProcessedArticle{}, err
	} else if ok {
		article.Summary = summary.Content
		article.SummaryError = summary.IsError
	}

	tags, err := db.ArticleTags(id)
	if err != nil {
		return models.ProcessedArticle{}, err
	}
	article.Tags = tags

	return article, nil
}

// LatestArticleTime returns the fetch time of the newest stored
// article, or the zero time when the store is empty. Fetch time, not
// publication time: a newly added feed carries old articles that are
// still new to the reader.
func (db *DB) LatestArticleTime() (time.Time, error) {
	var fetched sql.NullInt64
	if err := db.reads.QueryRow("SELECT MAX(created_at) FROM articles").Scan(&fetched); err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	if !fetched.Valid {
		return time.Time{}, nil
	}
	return time.Unix(fetched.Int64, 0).UTC(), nil
}

// CountArticles returns the total number of stored articles.
func (db *DB) CountArticles() (int64, error) {
	var count int64
	if err := db.reads.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return count, nil
}

// CountArticlesSince counts articles fetched strictly after the given
// time.
func (db *DB) CountArticlesSince(since time.Time) (int64, error) {
	var count int64
	if err := db.reads.QueryRow("SELECT COUNT(*) FROM articles WHERE created_at > ?", since.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return count, nil
}

// SetFavorite stars or unstars an article. sql.ErrNoRows is returned for
// unknown ids.
func (db *DB) SetFavorite(id int64, favorite bool) error {
	update := sqlbuilder.NewUpdateBuilder()
	update.Update("articles").Set(update.Assign("favorite", favorite)).Where(update.Equal("id", id))

	query, args := update.BuildWithFlavor(sqlbuilder.SQLite)
	res, err := db.writes.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// UpdateArticleContent replaces the stored content of an article, e.g.
// after fetching the full page for an entry that only carried a stub.
func (db *DB) UpdateArticleContent(id int64, contentHTML string, contentText string, wordCount int) error {
	update := sqlbuilder.NewUpdateBuilder()
	update.Update("articles").Set(
		update.Assign("content_html", contentHTML),
		update.Assign("content_text", contentText),
		update.Assign("word_count", wordCount),
	).Where(update.Equal("id", id))

	query, args := update.BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := db.writes.Exec(query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	return nil
}
