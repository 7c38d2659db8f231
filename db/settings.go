package db

import (
	"fmt"
	"strconv"

	"gleaner/config"
	"gleaner/models"
)

// GetSettings loads the stored settings on top of the defaults, so keys
// that were never written fall back to their default values.
func (db *DB) GetSettings() (models.Settings, error) {
	settings := config.DefaultSettings()

	rows, err := db.reads.Query("SELECT key, value FROM settings")
	if err != nil {
		return settings, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("scan error: %w", err)
		}
		applySetting(&settings, key, value)
	}

	return settings, rows.Err()
}

// UpdateSettings persists the non-nil fields of the update and returns
// the resulting settings.
func (db *DB) UpdateSettings(update models.SettingsUpdate) (models.Settings, error) {
	for key, value := range settingPairs(update) {
		if _, err := db.writes.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return models.Settings{}, fmt.Errorf("update error: %w", err)
		}
	}

	return db.GetSettings()
}

func applySetting(settings *models.Settings, key string, value string) {
	switch key {
	case "summary_prompt":
		settings.SummaryPrompt = value
	case "chat_prompt":
		settings.ChatPrompt = value
	case "tag_generation_prompt":
		settings.TagGenerationPrompt = value
	case "summary_model":
		settings.SummaryModel = value
	case "chat_model":
		settings.ChatModel = value
	case "tag_model":
		settings.TagModel = value
	case "page_size":
		if n, err := strconv.Atoi(value); err == nil {
			settings.PageSize = n
		}
	case "rss_check_interval_minutes":
		if n, err := strconv.Atoi(value); err == nil {
			settings.RSSCheckIntervalMinutes = n
		}
	case "minimum_word_count":
		if n, err := strconv.Atoi(value); err == nil {
			settings.MinimumWordCount = n
		}
	}
}

func settingPairs(update models.SettingsUpdate) map[string]string {
	pairs := map[string]string{}

	if update.SummaryPrompt != nil {
		pairs["summary_prompt"] = *update.SummaryPrompt
	}
	if update.ChatPrompt != nil {
		pairs["chat_prompt"] = *update.ChatPrompt
	}
	if update.TagGenerationPrompt != nil {
		pairs["tag_generation_prompt"] = *update.TagGenerationPrompt
	}
	if update.SummaryModel != nil {
		pairs["summary_model"] = *update.SummaryModel
	}
	if update.ChatModel != nil {
		pairs["chat_model"] = *update.ChatModel
	}
	if update.TagModel != nil {
		pairs["tag_model"] = *update.TagModel
	}
	if update.PageSize != nil {
		pairs["page_size"] = strconv.Itoa(*update.PageSize)
	}
	if update.RSSCheckIntervalMinutes != nil {
		pairs["rss_check_interval_minutes"] = strconv.Itoa(*update.RSSCheckIntervalMinutes)
	}
	if update.MinimumWordCount != nil {
		pairs["minimum_word_count"] = strconv.Itoa(*update.MinimumWordCount)
	}

	return pairs
}
