package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxThoughts = "deepthoughts_thoughts"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	logger    *slog.Logger
	healthy   atomic.Bool
	done      chan struct{}
	configure func()
	onRecover atomic.Pointer[func()]
}

// NewMeili creates a Meilisearch client and configures the thoughts index.
// An unreachable server leaves it unhealthy; the health loop keeps probing.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
		done:   make(chan struct{}),
	}
	m.configure = m.configureIndex

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxThoughts, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxThoughts, "error", err)
	}

	index := m.client.Index(idxThoughts)
	filterable := []interface{}{"username", "createdAt"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxThoughts, "error", err)
	}
	searchable := []string{"thoughtText", "username"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxThoughts, "error", err)
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn("update sortable attributes", "index", idxThoughts, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			m.observeHealth(err)
		}
	}
}

// OnRecover registers fn to run after the server comes back from an outage.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

func (m *Meili) observeHealth(err error) {
	wasHealthy := m.healthy.Swap(err == nil)
	if err != nil || wasHealthy {
		return
	}
	m.logger.Info("meilisearch recovered, reconfiguring index")
	m.configure()
	if fn := m.onRecover.Load(); fn != nil {
		(*fn)()
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		IndexUID:              idxThoughts,
		Query:                 q.Text,
		Limit:                 int64(normalizeLimit(q.Limit)),
		Offset:                int64(max(q.Offset, 0)),
		AttributesToHighlight: []string{"thoughtText"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Username != "" {
		sr.Filter = fmt.Sprintf("username = %q", q.Username)
	}

	resp, err := m.client.MultiSearchWithContext(ctx, &meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ThoughtID: decodeString(hit, "id"),
		Username:  decodeString(hit, "username"),
		Snippet:   firstNonBlank(decodeFormattedString(hit, "thoughtText"), decodeString(hit, "thoughtText")),
	}
	var millis int64
	if raw, ok := hit["createdAt"]; ok && json.Unmarshal(raw, &millis) == nil {
		r.CreatedAt = time.UnixMilli(millis).UTC()
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexThought(ctx context.Context, t ThoughtRecord) error {
	_, err := m.client.Index(idxThoughts).AddDocumentsWithContext(ctx, []ThoughtRecord{t}, nil)
	return err
}

func (m *Meili) IndexThoughts(ctx context.Context, records []ThoughtRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxThoughts).AddDocumentsWithContext(ctx, records, nil)
	return err
}
