package reroute

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"reroute/internal/docstore"
)

// RuleSource reads the full, unfiltered rule set. ListRules must return
// once ctx is done; a call that outlives its deadline keeps its goroutine
// and is reported by Cache.AbandonedQueries until it returns.
type RuleSource interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// DefaultCollection is the document collection holding redirect rules.
const DefaultCollection = "redirects"

// ruleDoc is the stored shape of a rule. The id lives in the key.
type ruleDoc struct {
	Source       string
	Destination  string
	StatusCode   string
	OpenInNewTab bool
}

// EncodeRule converts r to its stored form.
func EncodeRule(r Rule) any {
	return ruleDoc{
		Source:       r.Source,
		Destination:  r.Destination,
		StatusCode:   r.StatusCode,
		OpenInNewTab: r.OpenInNewTab,
	}
}

type lister interface {
	ListAll(ctx context.Context, collection string) ([]docstore.Document, error)
}

type storeSource struct {
	store      lister
	collection string
	log        *rateLimitedLogger

	skipped atomic.Uint64
}

// ListRules returns the decodable rules in stored order. Documents that do
// not decode are skipped and reported, never matched.
func (s *storeSource) ListRules(ctx context.Context) ([]Rule, error) {
	docs, err := s.store.ListAll(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(docs))
	var bad []string
	var firstErr error
	for _, d := range docs {
		var rd ruleDoc
		if err := d.Decode(&rd); err != nil {
			bad = append(bad, d.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, Rule{
			ID:           d.ID,
			Source:       rd.Source,
			Destination:  rd.Destination,
			StatusCode:   rd.StatusCode,
			OpenInNewTab: rd.OpenInNewTab,
		})
	}
	if len(bad) > 0 {
		s.skipped.Add(uint64(len(bad)))
		s.log.Warn("skipping undecodable redirect documents",
			zap.String("collection", s.collection),
			zap.Strings("ids", bad),
			zap.Error(firstErr),
		)
	}
	return out, nil
}

// emptySource stands in when the store is not configured.
type emptySource struct{}

func (emptySource) ListRules(context.Context) ([]Rule, error) { return nil, nil }

// NewStoreSource picks a rule source for the opened store client. A
// NotConfigured client yields a source that never returns rules.
func NewStoreSource(c docstore.Client, collection string, logger *zap.Logger) RuleSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = DefaultCollection
	}
	switch c := c.(type) {
	case docstore.Initialized:
		return &storeSource{
			store:      c.Store,
			collection: collection,
			log:        newRateLimitedLogger(logger, time.Minute),
		}
	case docstore.NotConfigured:
		logger.Warn("redirect store not configured, all requests pass through",
			zap.String("reason", c.Reason))
		return emptySource{}
	default:
		logger.Warn("redirect store client unusable, all requests pass through",
			zap.String("client", fmt.Sprintf("%T", c)))
		return emptySource{}
	}
}
