package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"gleaner/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// eventStream returns the SSE handler. Each connection gets a uuid key,
// announced in the init event so the client can deregister itself with
// the DELETE endpoint.
func eventStream(bc *Broadcaster) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		articleChannel := make(chan models.ArticleCreatedEvent, 10) // Buffered channel
		refreshChannel := make(chan models.RefreshCompletedEvent, 10)
		aliveChan := time.NewTicker(5 * time.Second)

		defer aliveChan.Stop()

		// Register the client
		bc.AddClient(key, articleChannel, refreshChannel)

		// Cleanup function
		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			// Start streaming loop
			for {
				select {
				case <-aliveChan.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-articleChannel:
					if !ok {
						log.Warnf("Article channel closed for client %s", key)
						return
					}
					jsonArticle, err := json.Marshal(event.Article)
					if err != nil {
						log.Errorf("Error marshalling article for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: article-created\ndata: %s\n\n", jsonArticle); err != nil {
						log.Warnf("Failed to send article-created event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush article-created event for client %s: %v", key, err)
						return
					}

				case event, ok := <-refreshChannel:
					if !ok {
						log.Warnf("Refresh channel closed for client %s", key)
						return
					}
					jsonEvent, err := json.Marshal(event)
					if err != nil {
						log.Errorf("Error marshalling refresh event for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: refresh-completed\ndata: %s\n\n", jsonEvent); err != nil {
						log.Warnf("Failed to send refresh-completed event to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush refresh-completed event for client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	}
}
