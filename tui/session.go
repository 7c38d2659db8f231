// Package tui is the terminal reader: a Bubble Tea program over the
// gleaner REST API with filterable article cards, an article view,
// per-article chat and feed/settings management.
package tui

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"gleaner/config"
	"gleaner/models"
)

// FilterKind is the active article filter. The three real kinds are
// mutually exclusive; applying one clears the other two.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterFeed
	FilterTags
	FilterKeyword
)

// Session holds the reader's client-side state: the active filter,
// pagination, the new-articles watermark and the settings snapshot.
// All mutation goes through its methods so the invariants (filter
// exclusivity, page resets, watermark monotonicity) hold in one place.
type Session struct {
	filterKind    FilterKind
	feedID        int64
	tagIDs        []int64
	keyword       string
	favoritesOnly bool

	page          int
	pageSize      int
	totalArticles int
	totalPages    int

	watermark   time.Time
	loadingMore bool

	settings models.Settings
	defaults models.Settings
}

func NewSession() *Session {
	return &Session{
		page:     1,
		pageSize: config.DefaultPageSize,
	}
}

// Load applies the server's bootstrap payload.
func (s *Session) Load(initial models.InitialConfig) {
	s.settings = initial.Settings
	s.defaults = initial.Defaults
	s.SetPageSize(initial.Settings.PageSize)
}

// ApplySettings replaces the settings snapshot after a successful save.
func (s *Session) ApplySettings(settings models.Settings) {
	s.settings = settings
	s.SetPageSize(settings.PageSize)
}

func (s *Session) Settings() models.Settings { return s.settings }
func (s *Session) Defaults() models.Settings { return s.defaults }

// ApplyFeedFilter switches to a single-feed view. A zero id degrades to
// no filter.
func (s *Session) ApplyFeedFilter(id int64) {
	if id <= 0 {
		s.ClearFilter()
		return
	}
	s.filterKind = FilterFeed
	s.feedID = id
	s.tagIDs = nil
	s.keyword = ""
	s.page = 1
}

// SetTagFilter replaces the tag selection. An empty set degrades to no
// filter.
func (s *Session) SetTagFilter(ids []int64) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		s.ClearFilter()
		return
	}
	s.filterKind = FilterTags
	s.tagIDs = ids
	s.feedID = 0
	s.keyword = ""
	s.page = 1
}

// ToggleTag adds or removes one tag from the selection. Toggling from
// another filter kind starts a fresh selection; removing the last tag
// clears the filter.
func (s *Session) ToggleTag(id int64) {
	if id <= 0 {
		return
	}
	if s.filterKind != FilterTags {
		s.SetTagFilter([]int64{id})
		return
	}
	if lo.Contains(s.tagIDs, id) {
		remaining := lo.Filter(s.tagIDs, func(tagID int64, _ int) bool { return tagID != id })
		s.SetTagFilter(remaining)
		return
	}
	s.SetTagFilter(append(s.tagIDs, id))
}

// ApplyKeywordFilter switches to keyword search. A blank query degrades
// to no filter.
func (s *Session) ApplyKeywordFilter(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.ClearFilter()
		return
	}
	s.filterKind = FilterKeyword
	s.keyword = query
	s.feedID = 0
	s.tagIDs = nil
	s.page = 1
}

func (s *Session) ClearFilter() {
	s.filterKind = FilterNone
	s.feedID = 0
	s.tagIDs = nil
	s.keyword = ""
	s.page = 1
}

func (s *Session) FilterKind() FilterKind { return s.filterKind }
func (s *Session) FeedID() int64          { return s.feedID }
func (s *Session) Keyword() string        { return s.keyword }

func (s *Session) TagIDs() []int64 {
	return append([]int64(nil), s.tagIDs...)
}

// ToggleFavoritesOnly flips the starred-only restriction. It is
// orthogonal to the filter kinds but still restarts pagination.
func (s *Session) ToggleFavoritesOnly() {
	s.favoritesOnly = !s.favoritesOnly
	s.page = 1
}

func (s *Session) FavoritesOnly() bool { return s.favoritesOnly }

// SetTotals records the server-reported article count and derives the
// page count from it.
func (s *Session) SetTotals(totalArticles int) {
	if totalArticles < 0 {
		totalArticles = 0
	}
	s.totalArticles = totalArticles
	s.totalPages = (totalArticles + s.pageSize - 1) / s.pageSize
}

// SetPageSize clamps to 1-50 and restarts pagination.
func (s *Session) SetPageSize(n int) {
	if n < 1 {
		n = 1
	}
	if n > config.MaxPageSize {
		n = config.MaxPageSize
	}
	s.pageSize = n
	s.page = 1
	s.SetTotals(s.totalArticles)
}

func (s *Session) Page() int          { return s.page }
func (s *Session) PageSize() int      { return s.pageSize }
func (s *Session) TotalArticles() int { return s.totalArticles }
func (s *Session) TotalPages() int    { return s.totalPages }

// AdvancePage moves to the next page. Callers gate on BeginLoadMore, so
// there is no bound check here.
func (s *Session) AdvancePage() { s.page++ }

func (s *Session) CanLoadMore() bool {
	return s.page < s.totalPages && !s.loadingMore
}

// BeginLoadMore is the single-flight gate for pagination fetches: it
// returns true at most once until EndLoadMore. A trigger that fires
// while a fetch is pending is dropped, not queued.
func (s *Session) BeginLoadMore() bool {
	if !s.CanLoadMore() {
		return false
	}
	s.loadingMore = true
	return true
}

func (s *Session) EndLoadMore()      { s.loadingMore = false }
func (s *Session) LoadingMore() bool { return s.loadingMore }

// ClampToCurrentPage stops further load-more attempts after a failed
// append; the pages beyond the current one are unreachable until a
// fresh page-1 load resets the totals.
func (s *Session) ClampToCurrentPage() {
	s.totalPages = s.page
}

// AdvanceWatermark moves the new-articles watermark forward. Only a
// strictly later timestamp changes it; equal, earlier, empty or
// unparseable values are no-ops returning false.
func (s *Session) AdvanceWatermark(timestamp string) bool {
	if timestamp == "" {
		return false
	}
	parsed, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return false
	}
	if !parsed.After(s.watermark) {
		return false
	}
	s.watermark = parsed
	return true
}

// Watermark returns the RFC3339 watermark, or "" before the first poll.
func (s *Session) Watermark() string {
	if s.watermark.IsZero() {
		return ""
	}
	return s.watermark.Format(time.RFC3339)
}

// HandleFeedDeleted drops the feed filter when its feed goes away.
func (s *Session) HandleFeedDeleted(id int64) {
	if s.filterKind == FilterFeed && s.feedID == id {
		s.ClearFilter()
	}
}

// SummariesRequest maps the session onto one page request. Custom
// prompts ride along only when they differ from the server defaults.
func (s *Session) SummariesRequest() models.SummariesRequest {
	request := models.SummariesRequest{
		Page:          s.page,
		PageSize:      s.pageSize,
		FavoritesOnly: s.favoritesOnly,
	}
	switch s.filterKind {
	case FilterFeed:
		request.FeedSourceIDs = []int64{s.feedID}
	case FilterTags:
		request.TagIDs = s.TagIDs()
	case FilterKeyword:
		request.Keyword = s.keyword
	}
	if s.settings.SummaryPrompt != "" && s.settings.SummaryPrompt != s.defaults.SummaryPrompt {
		request.SummaryPrompt = s.settings.SummaryPrompt
	}
	if s.settings.TagGenerationPrompt != "" && s.settings.TagGenerationPrompt != s.defaults.TagGenerationPrompt {
		request.TagGenerationPrompt = s.settings.TagGenerationPrompt
	}
	return request
}

// RegenerateRequest carries the custom prompts, if any, for a manual
// summary regeneration. Prompts matching the server defaults stay home.
func (s *Session) RegenerateRequest() models.RegenerateRequest {
	var request models.RegenerateRequest
	if s.settings.SummaryPrompt != "" && s.settings.SummaryPrompt != s.defaults.SummaryPrompt {
		request.SummaryPrompt = s.settings.SummaryPrompt
	}
	if s.settings.TagGenerationPrompt != "" && s.settings.TagGenerationPrompt != s.defaults.TagGenerationPrompt {
		request.TagGenerationPrompt = s.settings.TagGenerationPrompt
	}
	return request
}
