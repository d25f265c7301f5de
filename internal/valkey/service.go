package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/valkey-io/valkey-go"
)

const rateLimitKeyPrefix = "rate_limit:"

// Service holds the Valkey client used for request rate limiting.
type Service struct {
	client valkey.Client
	config domain.ValkeyConfig
}

// NewService creates and returns a new Valkey service.
// It initializes the Valkey client based on the provided configuration.
func NewService(cfg domain.ValkeyConfig) (*Service, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	// Ping the server to ensure connection is established.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	return &Service{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Service) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// GetClient returns the underlying Valkey client.
func (s *Service) GetClient() valkey.Client {
	return s.client
}

// CountRequest records one request for the identifier and returns how
// many requests landed inside the sliding window. Scores are unix
// timestamps; expired entries are trimmed on every call.
func (s *Service) CountRequest(ctx context.Context, identifierType string, identifier string, windowSeconds int) (int, error) {
	if s.client == nil {
		return 0, fmt.Errorf("valkey client not available")
	}

	key := fmt.Sprintf("%s%s:%s", rateLimitKeyPrefix, identifierType, identifier)
	now := time.Now().Unix()
	cutoff := now - int64(windowSeconds)

	s.client.Do(ctx, s.client.B().Zremrangebyscore().Key(key).Min("-inf").Max(fmt.Sprintf("%d", cutoff)).Build())
	s.client.Do(ctx, s.client.B().Zadd().Key(key).ScoreMember().ScoreMember(float64(now), fmt.Sprintf("%d", now)).Build())
	s.client.Do(ctx, s.client.B().Expire().Key(key).Seconds(int64(windowSeconds)).Build())

	countCmd := s.client.Do(ctx, s.client.B().Zcard().Key(key).Build())
	if countCmd.Error() != nil {
		return 0, fmt.Errorf("error counting rate limit entries: %w", countCmd.Error())
	}

	count, err := countCmd.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("error parsing rate limit count: %w", err)
	}

	return int(count), nil
}
