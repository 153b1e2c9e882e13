package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/logger"
)

// Backend stores and queries documents.
type Backend interface {
	Configure() error
	Upsert(docs []Document) error
	Search(query, kind string, limit int64) ([]Document, error)
}

// Indexer turns bus messages into index documents.
type Indexer struct {
	backend Backend
	log     *logger.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(backend Backend, log *logger.Logger) *Indexer {
	return &Indexer{backend: backend, log: logger.OrGlobal(log).Component("indexer")}
}

// Handle decodes one bus message and upserts its document. Malformed
// payloads are logged and acknowledged so they are not redelivered forever.
func (i *Indexer) Handle(subject string, data []byte) error {
	var doc Document
	switch subject {
	case events.SubjectChannelDiscovered:
		var ev events.ChannelDiscovered
		if err := json.Unmarshal(data, &ev); err != nil {
			i.log.Warn().Err(err).Str("subject", subject).Msg("dropping malformed event")
			return nil
		}
		doc = ChannelDocument(ev)
	case events.SubjectMessageCollected:
		var ev events.MessageCollected
		if err := json.Unmarshal(data, &ev); err != nil {
			i.log.Warn().Err(err).Str("subject", subject).Msg("dropping malformed event")
			return nil
		}
		doc = MessageDocument(ev)
	default:
		i.log.Debug().Str("subject", subject).Msg("ignoring subject")
		return nil
	}

	if doc.Handle == "" {
		i.log.Warn().Str("subject", subject).Msg("dropping event without handle")
		return nil
	}
	if err := i.backend.Upsert([]Document{doc}); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	i.log.Debug().Str("id", doc.ID).Msg("document indexed")
	return nil
}

// Search queries the index.
func (i *Indexer) Search(_ context.Context, query, kind string, limit int64) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	return i.backend.Search(query, kind, limit)
}
