package server

import (
	"sync"

	"gleaner/models"
	"gleaner/rss"

	log "github.com/sirupsen/logrus"
)

// Broadcaster fans ingest events out to connected SSE clients. Each
// client owns a pair of buffered channels; sends never block, slow
// clients just miss events.
type Broadcaster struct {
	sync.RWMutex
	articleClients map[string]chan models.ArticleCreatedEvent
	refreshClients map[string]chan models.RefreshCompletedEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		articleClients: make(map[string]chan models.ArticleCreatedEvent),
		refreshClients: make(map[string]chan models.RefreshCompletedEvent),
	}
}

// ArticleCreated pushes a freshly stored article to every client.
func (b *Broadcaster) ArticleCreated(article models.Article) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.articleClients {
		select {
		case client <- models.ArticleCreatedEvent{Article: article}:
		default:
			log.Warnf("Client channel full, skipping article event for client: %v", id)
		}
	}
}

// RefreshCompleted pushes refresh cycle statistics to every client.
func (b *Broadcaster) RefreshCompleted(event models.RefreshCompletedEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.refreshClients {
		select {
		case client <- event:
		default:
			log.Warnf("Client channel full, skipping refresh event for client: %v", id)
		}
	}
}

// AddClient registers a client's channels under its key.
func (b *Broadcaster) AddClient(key string, articleClient chan models.ArticleCreatedEvent, refreshClient chan models.RefreshCompletedEvent) {
	b.Lock()
	defer b.Unlock()

	b.articleClients[key] = articleClient
	b.refreshClients[key] = refreshClient

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.articleClients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes and forgets a client's channels. Safe to call
// twice; the second call is a no-op.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.articleClients[key]; ok {
		close(client)
		delete(b.articleClients, key)
	}

	if client, ok := b.refreshClients[key]; ok {
		close(client)
		delete(b.refreshClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.articleClients),
	}).Info("Removed client from broadcaster")
}

// Shutdown closes every client channel, ending their streams.
func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()

	for key, client := range b.articleClients {
		close(client)
		delete(b.articleClients, key)
	}
	for key, client := range b.refreshClients {
		close(client)
		delete(b.refreshClients, key)
	}
}

var _ rss.Notifier = (*Broadcaster)(nil)
