// Package library stores paper metadata records in a Notion database.
package library

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/model"
	"github.com/sells-group/paper-cli/internal/resilience"
	"github.com/sells-group/paper-cli/pkg/notion"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy sets the duplicate policy. Default: skip.
func WithPolicy(p Policy) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithDecider sets who answers for the ask policy. Without one, ask skips.
func WithDecider(d Decider) Option {
	return func(g *Gateway) { g.decider = d }
}

// WithClock sets the clock used for Date Added.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithRetry sets the retry policy for transient Notion failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *Gateway) { g.retry = cfg }
}

// WithCircuit sets the circuit breaker thresholds.
func WithCircuit(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *Gateway) { g.circuit = cfg }
}

// Gateway upserts records into one Notion database. It is safe for
// concurrent use; the duplicate check and create are not atomic.
type Gateway struct {
	client  notion.Client
	dbID    string
	policy  Policy
	decider Decider
	now     func() time.Time
	retry   resilience.RetryConfig
	circuit resilience.CircuitBreakerConfig
	breaker *resilience.CircuitBreaker
	log     *zap.Logger

	mu       sync.Mutex
	db       *notionapi.Database
	schemaOK bool
}

// New creates a Gateway for database dbID.
func New(client notion.Client, dbID string, opts ...Option) *Gateway {
	g := &Gateway{
		client:  client,
		dbID:    dbID,
		policy:  PolicySkip,
		now:     time.Now,
		retry:   resilience.DefaultRetryConfig(),
		circuit: resilience.DefaultCircuitBreakerConfig(),
		log:     zap.L().With(zap.String("component", "library")),
	}
	for _, o := range opts {
		o(g)
	}
	g.retry.ShouldRetry = retryable
	g.retry.OnRetry = resilience.RetryLogger("notion", "call")
	g.circuit.ShouldTrip = retryable
	g.circuit.OnStateChange = func(service string, from, to resilience.CircuitState) {
		g.log.Warn("circuit state changed", zap.String("service", service), zap.Stringer("from", from), zap.Stringer("to", to))
	}
	g.breaker = resilience.NewCircuitBreaker("notion", g.circuit)
	return g
}

// Policy returns the configured duplicate policy.
func (g *Gateway) Policy() Policy { return g.policy }

// call runs fn behind the circuit breaker with bounded retries and maps
// the final error into the pipeline taxonomy.
func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, g.retry, fn)
	})
	if err != nil && ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "library: "+op)
	}
	return mapError(op, err)
}

// Upsert stores rec. A duplicate is skipped or updated according to the
// policy; otherwise a new record is created with Status Inbox and today's
// Date Added. A skipped duplicate returns a ref with Operation skipped and
// no error.
func (g *Gateway) Upsert(ctx context.Context, rec *model.MetadataRecord, prov model.Provenance) (*model.StoredPageRef, error) {
	if err := g.CheckSchema(ctx); err != nil {
		return nil, err
	}

	match, err := g.FindDuplicate(ctx, rec.Title, prov.Origin)
	if err != nil {
		return nil, err
	}

	if match != nil {
		policy, err := g.resolvePolicy(ctx, rec, match)
		if err != nil {
			return nil, err
		}
		if policy != PolicyUpdate {
			g.log.Info("duplicate skipped",
				zap.String("title", rec.Title),
				zap.String("page_id", match.PageID),
				zap.String("matched_by", string(match.By)),
			)
			return &model.StoredPageRef{PageID: match.PageID, URL: match.URL, Operation: model.OpSkipped}, nil
		}
		return g.update(ctx, rec, prov, match)
	}
	return g.create(ctx, rec, prov)
}

func (g *Gateway) resolvePolicy(ctx context.Context, rec *model.MetadataRecord, m *Match) (Policy, error) {
	if g.policy != PolicyAsk {
		return g.policy, nil
	}
	if g.decider == nil {
		return PolicySkip, nil
	}
	p, err := g.decider.Decide(ctx, rec, m)
	if err != nil {
		return "", eris.Wrap(err, "library: ask duplicate policy")
	}
	return p, nil
}

func (g *Gateway) create(ctx context.Context, rec *model.MetadataRecord, prov model.Provenance) (*model.StoredPageRef, error) {
	rec, err := g.ensureOptions(ctx, rec)
	if err != nil {
		return nil, err
	}

	props := buildProperties(rec, prov)
	props[FieldStatus] = notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: InitialStatus},
	}
	today := notionapi.Date(dateOnly(g.now()))
	props[FieldDateAdded] = notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &today},
	}

	var page *notionapi.Page
	err = g.call(ctx, "create page", func(ctx context.Context) error {
		var err error
		page, err = g.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(g.dbID),
			},
			Properties: props,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("record created", zap.String("page_id", string(page.ID)), zap.String("title", rec.Title))
	return &model.StoredPageRef{PageID: string(page.ID), URL: page.URL, Operation: model.OpCreated}, nil
}

// update rewrites the mapped fields of an existing record, leaving Status
// and Date Added as a human may have changed them.
func (g *Gateway) update(ctx context.Context, rec *model.MetadataRecord, prov model.Provenance, m *Match) (*model.StoredPageRef, error) {
	rec, err := g.ensureOptions(ctx, rec)
	if err != nil {
		return nil, err
	}

	var page *notionapi.Page
	err = g.call(ctx, "update page", func(ctx context.Context) error {
		var err error
		page, err = g.client.UpdatePage(ctx, m.PageID, &notionapi.PageUpdateRequest{
			Properties: buildProperties(rec, prov),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	url := page.URL
	if url == "" {
		url = m.URL
	}
	g.log.Info("record updated", zap.String("page_id", m.PageID), zap.String("title", rec.Title))
	return &model.StoredPageRef{PageID: m.PageID, URL: url, Operation: model.OpUpdated}, nil
}

// ensureOptions adds Keywords and Main Topics values missing from the
// database vocabulary. Values that differ from an existing option only by
// case reuse that option. The returned record carries the final names.
func (g *Gateway) ensureOptions(ctx context.Context, rec *model.MetadataRecord) (*model.MetadataRecord, error) {
	db, err := g.database(ctx, false)
	if err != nil {
		return nil, err
	}

	out := *rec
	configs := notionapi.PropertyConfigs{}
	for _, f := range []struct {
		name   string
		values *[]string
	}{
		{FieldKeywords, &out.Keywords},
		{FieldMainTopics, &out.MainTopics},
	} {
		existing := notion.SelectOptions(db, f.name)
		byFold := make(map[string]string, len(existing))
		for _, e := range existing {
			byFold[strings.ToLower(e)] = e
		}

		names := make([]string, 0, len(*f.values))
		var added []string
		for _, raw := range *f.values {
			v := optionName(raw)
			if v == "" {
				continue
			}
			if v != strings.TrimSpace(raw) {
				g.log.Warn("option name rewritten",
					zap.String("field", f.name),
					zap.String("value", raw),
					zap.String("stored", v),
				)
			}
			if e, ok := byFold[strings.ToLower(v)]; ok {
				names = append(names, e)
				continue
			}
			byFold[strings.ToLower(v)] = v
			added = append(added, v)
			names = append(names, v)
		}
		*f.values = model.UniqueFold(names)

		if len(added) == 0 {
			continue
		}
		opts := make([]notionapi.Option, 0, len(existing)+len(added))
		for _, e := range existing {
			opts = append(opts, notionapi.Option{Name: e})
		}
		for _, a := range added {
			opts = append(opts, notionapi.Option{Name: a})
		}
		configs[f.name] = notionapi.MultiSelectPropertyConfig{
			Type:        "multi_select",
			MultiSelect: notionapi.Select{Options: opts},
		}
	}

	if len(configs) == 0 {
		return &out, nil
	}

	var updated *notionapi.Database
	err = g.call(ctx, "add select options", func(ctx context.Context) error {
		var err error
		updated, err = g.client.UpdateDatabase(ctx, g.dbID, &notionapi.DatabaseUpdateRequest{Properties: configs})
		return err
	})
	if err != nil {
		return nil, err
	}
	g.log.Debug("added select options", zap.Int("properties", len(configs)))

	g.mu.Lock()
	g.db = updated
	g.mu.Unlock()
	return &out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
