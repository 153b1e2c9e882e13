package index

import (
	"encoding/json"
	"fmt"

	"github.com/meilisearch/meilisearch-go"
)

// Meili is a Backend over one Meilisearch index.
type Meili struct {
	client *meilisearch.Client
	uid    string
}

var _ Backend = (*Meili)(nil)

// NewMeili creates a backend for the index uid.
func NewMeili(host, apiKey, uid string) *Meili {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	return &Meili{client: client, uid: uid}
}

// Configure creates the index when missing and applies its settings.
func (m *Meili) Configure() error {
	task, err := m.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        m.uid,
		PrimaryKey: "id",
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", m.uid, err)
	}
	// an existing index makes the task fail, which is fine
	_, _ = m.client.WaitForTask(task.TaskUID)

	index := m.client.Index(m.uid)
	settings := []func() (*meilisearch.TaskInfo, error){
		func() (*meilisearch.TaskInfo, error) {
			return index.UpdateSearchableAttributes(&[]string{"title", "handle", "content", "category"})
		},
		func() (*meilisearch.TaskInfo, error) {
			return index.UpdateFilterableAttributes(&[]string{"kind", "media_kind", "handle", "category"})
		},
		func() (*meilisearch.TaskInfo, error) {
			return index.UpdateSortableAttributes(&[]string{"created_at", "member_count"})
		},
	}
	for _, apply := range settings {
		task, err := apply()
		if err != nil {
			return fmt.Errorf("update settings of %s: %w", m.uid, err)
		}
		if err := m.wait(task); err != nil {
			return err
		}
	}
	return nil
}

// Upsert adds or replaces documents and waits for the task.
func (m *Meili) Upsert(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	task, err := m.client.Index(m.uid).AddDocuments(docs, "id")
	if err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return m.wait(task)
}

// Search runs a full-text query, optionally restricted to one kind.
func (m *Meili) Search(query, kind string, limit int64) ([]Document, error) {
	req := &meilisearch.SearchRequest{
		Limit: limit,
		Sort:  []string{"created_at:desc"},
	}
	if kind != "" {
		req.Filter = fmt.Sprintf("kind = %q", kind)
	}
	res, err := m.client.Index(m.uid).Search(query, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.uid, err)
	}
	return decodeHits(res.Hits)
}

func (m *Meili) wait(task *meilisearch.TaskInfo) error {
	done, err := m.client.WaitForTask(task.TaskUID)
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", task.TaskUID, err)
	}
	if done.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("task %d failed", task.TaskUID)
	}
	return nil
}

// decodeHits turns untyped hits back into documents.
func decodeHits(hits []interface{}) ([]Document, error) {
	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("encode hits: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode hits: %w", err)
	}
	return docs, nil
}
