package db

import (
	"database/sql"
	"fmt"
	"time"

	"gleaner/config"
	"gleaner/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// CreateFeed registers a new feed and returns the stored row.
func (db *DB) CreateFeed(input models.FeedInput) (models.Feed, error) {
	interval := input.FetchIntervalMinutes
	if interval <= 0 {
		interval = config.DefaultFetchIntervalMinutes
	}

	insert := sqlbuilder.NewInsertBuilder()
	insert.InsertInto("feeds").
		Cols("url", "name", "fetch_interval_minutes").
		Values(input.URL, input.Name, interval)

	query, args := insert.BuildWithFlavor(sqlbuilder.SQLite)
	res, err := db.writes.Exec(query, args...)
	if err != nil {
		return models.Feed{}, fmt.Errorf("insert error: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Feed{}, err
	}

	return db.GetFeed(id)
}

// GetFeed returns a single feed. sql.ErrNoRows is passed through for
// unknown ids.
func (db *DB) GetFeed(id int64) (models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"id", "url", "name", "fetch_interval_minutes", "last_fetched_at",
		"(SELECT COUNT(*) FROM articles WHERE articles.feed_id = feeds.id)",
	).From("feeds")
	sb.Where(sb.Equal("id", id))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	return scanFeed(db.reads.QueryRow(query, args...))
}

// FeedByURL looks a feed up by its URL. sql.ErrNoRows is passed through
// when the URL is not registered.
func (db *DB) FeedByURL(url string) (models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"id", "url", "name", "fetch_interval_minutes", "last_fetched_at",
		"(SELECT COUNT(*) FROM articles WHERE articles.feed_id = feeds.id)",
	).From("feeds")
	sb.Where(sb.Equal("url", url))

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	return scanFeed(db.reads.QueryRow(query, args...))
}

// ListFeeds returns all feeds with their article counts, oldest first.
func (db *DB) ListFeeds() ([]models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(
		"feeds.id", "feeds.url", "feeds.name", "feeds.fetch_interval_minutes", "feeds.last_fetched_at",
		"COUNT(articles.id)",
	).From("feeds")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "articles", "articles.feed_id = feeds.id")
	sb.GroupBy("feeds.id")
	sb.OrderBy("feeds.id").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	rows, err := db.reads.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	feeds := []models.Feed{}
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// DeleteFeed removes a feed and, through the cascading foreign keys, all
// of its articles, tag links, summaries and chat history. sql.ErrNoRows
// is returned for unknown ids.
func (db *DB) DeleteFeed(id int64) error {
	res, err := db.writes.Exec("DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
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

// UpdateFeed applies a partial update and returns the stored row.
// sql.ErrNoRows is returned for unknown ids.
func (db *DB) UpdateFeed(id int64, input models.FeedUpdate) (models.Feed, error) {
	if input.Name == nil && input.FetchIntervalMinutes == nil {
		return db.GetFeed(id)
	}

	update := sqlbuilder.NewUpdateBuilder()
	update.Update("feeds").Where(update.Equal("id", id))

	assignments := []string{}
	if input.Name != nil {
		assignments = append(assignments, update.Assign("name", *input.Name))
	}
	if input.FetchIntervalMinutes != nil {
		assignments = append(assignments, update.Assign("fetch_interval_minutes", *input.FetchIntervalMinutes))
	}
	update.Set(assignments...)

	query, args := update.BuildWithFlavor(sqlbuilder.SQLite)
	res, err := db.writes.Exec(query, args...)
	if err != nil {
		return models.Feed{}, fmt.Errorf("update error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.Feed{}, err
	}
	if affected == 0 {
		return models.Feed{}, sql.ErrNoRows
	}

	return db.GetFeed(id)
}

// TouchFeedFetched records a fetch attempt. It is called on failures
// too, so a broken feed does not get retried on every cycle.
func (db *DB) TouchFeedFetched(id int64, fetched time.Time) error {
	update := sqlbuilder.NewUpdateBuilder()
	update.Update("feeds").
		Set(update.Assign("last_fetched_at", fetched.Unix())).
		Where(update.Equal("id", id))

	query, args := update.BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := db.writes.Exec(query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	return nil
}

// UpdateFeedName fills in the feed title discovered during fetching.
func (db *DB) UpdateFeedName(id int64, name string) error {
	update := sqlbuilder.NewUpdateBuilder()
	update.Update("feeds").
		Set(update.Assign("name", name)).
		Where(update.Equal("id", id))

	query, args := update.BuildWithFlavor(sqlbuilder.SQLite)
	if _, err := db.writes.Exec(query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (models.Feed, error) {
	var feed models.Feed
	var lastFetched sql.NullInt64

	if err := row.Scan(&feed.ID, &feed.URL, &feed.Name, &feed.FetchIntervalMinutes, &lastFetched, &feed.ArticleCount); err != nil {
		return models.Feed{}, err
	}

	if lastFetched.Valid {
		fetched := time.Unix(lastFetched.Int64, 0).UTC()
		feed.LastFetchedAt = &fetched
	}

	return feed, nil
}
