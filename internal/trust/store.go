package trust

import (
	"context"
	"encoding/json"
	"fmt"

	"match-gateway/internal/search"
)

// ServerIndex is the engine index backing the default trust store.
const ServerIndex = "servers"

// Stored is an entry with its storage id. One server may appear twice, once
// per direction, each under its own id.
type Stored struct {
	ID string
	Entry
}

// Store persists trust entries. Find and FindByKey return every matching
// entry so the service layer can enforce uniqueness itself.
type Store interface {
	Save(ctx context.Context, id string, entry Entry) error
	Find(ctx context.Context, serverID string, direction Direction) ([]Stored, error)
	FindByKey(ctx context.Context, key string, direction Direction) ([]Stored, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, direction Direction) ([]Entry, error)
}

// EngineStore keeps trust entries in the search engine, alongside the
// patient and vocabulary indices. Writes refresh the index so new
// authorizations are usable immediately.
type EngineStore struct {
	engine search.Engine
}

func NewEngineStore(engine search.Engine) *EngineStore {
	return &EngineStore{engine: engine}
}

func (s *EngineStore) Save(ctx context.Context, id string, entry Entry) error {
	source, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("trust: encode entry: %w", err)
	}
	doc := search.Document{
		Keywords: map[string][]string{
			"server_id":  {entry.ServerID},
			"server_key": {entry.Key},
			"direction":  {string(entry.Direction)},
		},
		Source: source,
	}
	if err := s.engine.Upsert(ctx, ServerIndex, id, doc); err != nil {
		return fmt.Errorf("trust: save entry: %w", err)
	}
	return s.engine.Refresh(ctx, ServerIndex)
}

func (s *EngineStore) Find(ctx context.Context, serverID string, direction Direction) ([]Stored, error) {
	return s.find(ctx, search.Query{Filter: []search.Term{
		{Field: "server_id", Value: serverID},
		{Field: "direction", Value: string(direction)},
	}})
}

func (s *EngineStore) FindByKey(ctx context.Context, key string, direction Direction) ([]Stored, error) {
	return s.find(ctx, search.Query{Filter: []search.Term{
		{Field: "server_key", Value: key},
		{Field: "direction", Value: string(direction)},
	}})
}

func (s *EngineStore) find(ctx context.Context, q search.Query) ([]Stored, error) {
	hits, err := s.engine.Search(ctx, ServerIndex, q, 0)
	if err != nil {
		return nil, fmt.Errorf("trust: search entries: %w", err)
	}
	out := make([]Stored, 0, len(hits))
	for _, hit := range hits {
		var entry Entry
		if err := json.Unmarshal(hit.Source, &entry); err != nil {
			return nil, fmt.Errorf("trust: decode entry %q: %w", hit.ID, err)
		}
		out = append(out, Stored{ID: hit.ID, Entry: entry})
	}
	return out, nil
}

func (s *EngineStore) Delete(ctx context.Context, id string) error {
	if err := s.engine.Delete(ctx, ServerIndex, id); err != nil {
		return fmt.Errorf("trust: delete entry: %w", err)
	}
	return s.engine.Refresh(ctx, ServerIndex)
}

// List returns entries for one direction, or every entry when direction is
// empty.
func (s *EngineStore) List(ctx context.Context, direction Direction) ([]Entry, error) {
	var q search.Query
	if direction != "" {
		q.Filter = []search.Term{{Field: "direction", Value: string(direction)}}
	}
	stored, err := s.find(ctx, q)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(stored))
	for _, st := range stored {
		entries = append(entries, st.Entry)
	}
	return entries, nil
}
