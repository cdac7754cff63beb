// Package knowledgebase loads, validates and caches the curated therapy
// knowledge base of each cancer type.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

const defaultCacheSize = 16

// LoadObserver is notified after every load attempt that reached the source.
type LoadObserver func(cancerType domain.CancerType, err error)

// Store loads knowledge bases from a source once per cancer type. Concurrent
// first loads are coalesced and failures are never cached, so a fixed source
// is picked up by the next request.
type Store struct {
	source   domain.KnowledgeBaseSource
	cache    *lru.Cache[domain.CancerType, *domain.KnowledgeBase]
	group    singleflight.Group
	logger   *logrus.Logger
	observer LoadObserver
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLoadObserver registers a callback for load outcomes.
func WithLoadObserver(observer LoadObserver) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// NewStore creates a store over the given source.
func NewStore(source domain.KnowledgeBaseSource, cacheSize int, opts ...Option) (*Store, error) {
	if source == nil {
		return nil, errors.New("knowledge base source is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache, err := lru.New[domain.CancerType, *domain.KnowledgeBase](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge base cache: %w", err)
	}

	s := &Store{
		source: source,
		cache:  cache,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the validated knowledge base for a cancer type. The returned
// value is shared between callers and must be treated as read-only.
func (s *Store) Load(ctx context.Context, cancerType domain.CancerType) (*domain.KnowledgeBase, error) {
	if !cancerType.IsValid() {
		return nil, domain.NewKnowledgeBaseError(cancerType, "unsupported cancer type", domain.ErrUnknownCancerType)
	}

	if kb, ok := s.cache.Get(cancerType); ok {
		return kb, nil
	}

	// The shared load must not be aborted because one waiting caller gave up.
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(string(cancerType), func() (interface{}, error) {
		if kb, ok := s.cache.Get(cancerType); ok {
			return kb, nil
		}
		kb, err := s.loadFromSource(loadCtx, cancerType)
		if err != nil {
			return nil, err
		}
		s.cache.Add(cancerType, kb)
		return kb, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.logger.WithField("cancer_type", cancerType).Debug("Knowledge base load coalesced")
	}
	return v.(*domain.KnowledgeBase), nil
}

func (s *Store) loadFromSource(ctx context.Context, cancerType domain.CancerType) (*domain.KnowledgeBase, error) {
	log := s.logger.WithFields(logrus.Fields{
		"cancer_type": cancerType,
		"source":      s.source.Name(),
	})

	kb, err := s.fetchAndParse(ctx, cancerType)
	if s.observer != nil {
		s.observer(cancerType, err)
	}
	if err != nil {
		log.WithError(err).Error("Failed to load knowledge base")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"subtypes":   len(kb.Subtypes),
		"biomarkers": len(kb.Biomarkers),
	}).Info("Knowledge base loaded")
	return kb, nil
}

func (s *Store) fetchAndParse(ctx context.Context, cancerType domain.CancerType) (*domain.KnowledgeBase, error) {
	document, err := s.source.Fetch(ctx, cancerType)
	if err != nil {
		reason := "failed to read source"
		if errors.Is(err, domain.ErrNotFound) {
			reason = "source is missing"
		}
		return nil, domain.NewKnowledgeBaseError(cancerType, reason, err)
	}
	return Parse(cancerType, document)
}

// Invalidate drops a cached knowledge base so the next Load re-reads the source.
func (s *Store) Invalidate(cancerType domain.CancerType) {
	s.cache.Remove(cancerType)
}

// Writer stores knowledge base documents.
type Writer interface {
	Put(ctx context.Context, cancerType domain.CancerType, document []byte) error
}

// Seed copies documents from src into dst for every cancer type that dst does
// not have yet. It returns the cancer types that were written.
func Seed(ctx context.Context, dst interface {
	domain.KnowledgeBaseSource
	Writer
}, src domain.KnowledgeBaseSource) ([]domain.CancerType, error) {
	var seeded []domain.CancerType
	for _, cancerType := range domain.CancerTypes {
		_, err := dst.Fetch(ctx, cancerType)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return seeded, err
		}

		document, err := src.Fetch(ctx, cancerType)
		if err != nil {
			return seeded, fmt.Errorf("failed to read seed document for %s: %w", cancerType, err)
		}
		if err := dst.Put(ctx, cancerType, document); err != nil {
			return seeded, err
		}
		seeded = append(seeded, cancerType)
	}
	return seeded, nil
}
