package repository

import (
	"context"
	"fmt"
	"time"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	pkgcache "RegimeML/pkg/cache"
)

// regimeMessage is the wire form of a prediction on every sink.
type regimeMessage struct {
	Symbol        string             `json:"symbol"`
	Time          time.Time          `json:"t"`
	Regime        int                `json:"regime"`
	RegimeName    string             `json:"regime_name"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelID       string             `json:"model_id,omitempty"`
}

func toMessage(p models.RegimePrediction) regimeMessage {
	probs := make(map[string]float64, len(p.Probabilities))
	for i, v := range p.Probabilities {
		probs[models.Regime(i).String()] = v
	}
	return regimeMessage{
		Symbol:        p.Symbol,
		Time:          p.Time.UTC(),
		Regime:        int(p.Regime),
		RegimeName:    p.Regime.String(),
		Confidence:    p.Confidence,
		Probabilities: probs,
		ModelID:       p.ModelID,
	}
}

type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaRegimeSink implements RegimeSink for Kafka, keyed by symbol.
type KafkaRegimeSink struct {
	producer messagePublisher
	topic    string
}

// NewKafkaRegimeSink creates Kafka sink. The producer is usually a
// *pkgkafka.Producer.
func NewKafkaRegimeSink(producer messagePublisher, topic string) repository.RegimeSink {
	return &KafkaRegimeSink{producer: producer, topic: topic}
}

func (s *KafkaRegimeSink) Name() string { return "kafka:" + s.topic }

func (s *KafkaRegimeSink) Publish(ctx context.Context, p models.RegimePrediction) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(p.Symbol), toMessage(p)); err != nil {
		return fmt.Errorf("publish regime: %w", err)
	}
	return nil
}

func (s *KafkaRegimeSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// CacheRegimeSink keeps the latest prediction per symbol under
// "regime:<symbol>" (the cache adds its own prefix).
type CacheRegimeSink struct {
	cache pkgcache.Service
	ttl   time.Duration
}

func NewCacheRegimeSink(c pkgcache.Service, ttl time.Duration) *CacheRegimeSink {
	return &CacheRegimeSink{cache: c, ttl: ttl}
}

func (s *CacheRegimeSink) Name() string { return "cache" }

// LatestKey returns the cache key holding the newest prediction for symbol.
func LatestKey(symbol string) string {
	return pkgcache.GenerateKey("regime", symbol)
}

func (s *CacheRegimeSink) Publish(ctx context.Context, p models.RegimePrediction) error {
	key := LatestKey(p.Symbol)
	var prev regimeMessage
	err := s.cache.Get(ctx, key, &prev)
	if err == nil && prev.Time.After(p.Time) {
		// never overwrite a newer bar's regime with an older one
		return nil
	}
	if err := s.cache.Set(ctx, key, toMessage(p), s.ttl); err != nil {
		return fmt.Errorf("cache regime: %w", err)
	}
	return nil
}

// Latest reads the cached prediction for symbol.
func (s *CacheRegimeSink) Latest(ctx context.Context, symbol string) (models.RegimePrediction, error) {
	var m regimeMessage
	if err := s.cache.Get(ctx, LatestKey(symbol), &m); err != nil {
		return models.RegimePrediction{}, err
	}
	p := models.RegimePrediction{
		Symbol:        m.Symbol,
		Time:          m.Time,
		Regime:        models.Regime(m.Regime),
		Confidence:    m.Confidence,
		ModelID:       m.ModelID,
		Probabilities: make([]float64, models.NumRegimes),
	}
	for i := range p.Probabilities {
		p.Probabilities[i] = m.Probabilities[models.Regime(i).String()]
	}
	return p, nil
}

func (s *CacheRegimeSink) Close() error { return s.cache.Close() }
