package db

import (
	"fmt"
	"strings"

	"gleaner/models"
	"gleaner/query"

	"github.com/huandu/go-sqlbuilder"
)

// FeedSourceFilter restricts articles to a set of feeds
type FeedSourceFilter struct {
	FeedIDs []int64
}

func (f *FeedSourceFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.FeedIDs) > 0 {
		sb.Where(sb.In("articles.feed_id", sqlbuilder.Flatten(f.FeedIDs)...))
	}
}

// TagFilter keeps articles carrying at least one of the given tags
type TagFilter struct {
	TagIDs []int64
}

func (f *TagFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.TagIDs) == 0 {
		return
	}

	tagged := sqlbuilder.NewSelectBuilder()
	tagged.Select("article_tags.article_id").From("article_tags")
	tagged.Where(tagged.In("article_tags.tag_id", sqlbuilder.Flatten(f.TagIDs)...))

	sb.Where(sb.In("articles.id", tagged))
}

// KeywordFilter matches articles against the full text index
type KeywordFilter struct {
	Keyword string
}

func (f *KeywordFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	keyword := strings.TrimSpace(f.Keyword)
	if keyword == "" {
		return
	}

	// Escape double quotes for the FTS5 phrase syntax and single quotes
	// for the SQL string literal, then match the keyword as one phrase.
	safe := strings.ReplaceAll(keyword, `"`, `""`)
	safe = strings.ReplaceAll(safe, "'", "''")
	sb.Where(fmt.Sprintf(`articles.id IN (SELECT rowid FROM articles_fts WHERE articles_fts MATCH '"%s"')`, safe))
}

// FavoritesFilter keeps only starred articles
type FavoritesFilter struct{}

func (f *FavoritesFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	sb.Where(sb.Equal("articles.favorite", 1))
}

// MinimumWordCountFilter drops articles shorter than the configured minimum
type MinimumWordCountFilter struct {
	Minimum int
}

func (f *MinimumWordCountFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if f.Minimum > 0 {
		sb.Where(sb.GreaterEqualThan("articles.word_count", f.Minimum))
	}
}

// BuildFilters assembles the filter chain for an article listing request.
// The minimum word count is skipped for keyword searches so that search
// can surface short articles the feed view hides.
func BuildFilters(request models.SummariesRequest, minimumWordCount int) []query.FilterStrategy {
	var filters []query.FilterStrategy

	if len(request.FeedSourceIDs) > 0 {
		filters = append(filters, &FeedSourceFilter{FeedIDs: request.FeedSourceIDs})
	}

	if len(request.TagIDs) > 0 {
		filters = append(filters, &TagFilter{TagIDs: request.TagIDs})
	}

	keyword := strings.TrimSpace(request.Keyword)
	if keyword != "" {
		filters = append(filters, &KeywordFilter{Keyword: keyword})
	} else if minimumWordCount > 0 {
		filters = append(filters, &MinimumWordCountFilter{Minimum: minimumWordCount})
	}

	if request.FavoritesOnly {
		filters = append(filters, &FavoritesFilter{})
	}

	return filters
}

var _ query.FilterStrategy = (*FeedSourceFilter)(nil)
var _ query.FilterStrategy = (*TagFilter)(nil)
var _ query.FilterStrategy = (*KeywordFilter)(nil)
var _ query.FilterStrategy = (*FavoritesFilter)(nil)
var _ query.FilterStrategy = (*MinimumWordCountFilter)(nil)
