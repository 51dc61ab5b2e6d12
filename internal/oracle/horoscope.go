package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcanalabs/arcana-server/internal/domain"
)

const (
	horoscopeKeyPattern = "horoscope:%s:%s"
	// horoscopeTTL outlives the calendar day so late-evening readers in
	// western timezones still hit the cache.
	horoscopeTTL = 48 * time.Hour
)

// Horoscopes serves the daily per-sign texts, generating and caching them
// on demand. The precompute job warms the whole cache before the morning
// traffic peak.
type Horoscopes struct {
	generator   Generator
	redisClient *redis.Client
	log         *slog.Logger
}

// NewHoroscopes constructs the daily horoscope service.
func NewHoroscopes(generator Generator, redisClient *redis.Client, log *slog.Logger) *Horoscopes {
	if log == nil {
		log = slog.Default()
	}

	return &Horoscopes{
		generator:   generator,
		redisClient: redisClient,
		log:         log,
	}
}

// ForSign returns today's horoscope for a sign, generating it on a cache miss.
func (h *Horoscopes) ForSign(ctx context.Context, sign domain.ZodiacSign) (string, error) {
	if !sign.Valid() {
		return "", fmt.Errorf("unknown zodiac sign: %q", sign)
	}

	key := h.key(sign)

	if h.redisClient != nil {
		text, err := h.redisClient.Get(ctx, key).Result()
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, redis.Nil) {
			h.log.Warn("horoscope cache get failed", slog.String("sign", string(sign)), slog.Any("error", err))
		}
	}

	text, err := h.generator.Generate(ctx, Request{Kind: KindHoroscope, Sign: sign})
	if err != nil {
		return "", err
	}

	h.store(ctx, key, text, string(sign))

	return text, nil
}

// PrecomputeAll generates and caches today's text for every sign. Partial
// failure is fine; missing signs fall back to on-demand generation.
func (h *Horoscopes) PrecomputeAll(ctx context.Context) error {
	var failed int

	for _, sign := range domain.AllSigns {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		text, err := h.generator.Generate(ctx, Request{Kind: KindHoroscope, Sign: sign})
		if err != nil {
			failed++
			h.log.Error("horoscope precompute failed", slog.String("sign", string(sign)), slog.Any("error", err))
			continue
		}

		h.store(ctx, h.key(sign), text, string(sign))
	}

	if failed > 0 {
		return fmt.Errorf("horoscope precompute: %d of %d signs failed", failed, len(domain.AllSigns))
	}

	h.log.Info("daily horoscopes precomputed", slog.Int("signs", len(domain.AllSigns)))

	return nil
}

func (h *Horoscopes) key(sign domain.ZodiacSign) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf(horoscopeKeyPattern, day, sign)
}

func (h *Horoscopes) store(ctx context.Context, key, text, sign string) {
	if h.redisClient == nil {
		return
	}

	if err := h.redisClient.Set(ctx, key, text, horoscopeTTL).Err(); err != nil {
		h.log.Warn("horoscope cache set failed", slog.String("sign", sign), slog.Any("error", err))
	}
}
