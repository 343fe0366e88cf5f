package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
)

// ConfigKey is the cache key of a doctor's configuration snapshot.
func ConfigKey(doctorID string) string {
	return "doctor:" + doctorID
}

type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func getDoctorConfig(ctx context.Context, s byteStore, tenantID, doctorID string) (*domain.DoctorConfig, error) {
	data, err := s.Get(ctx, tenantID, ConfigKey(doctorID))
	if err != nil || data == nil {
		return nil, err
	}

	var cfg domain.DoctorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDoctorConfig(ctx context.Context, s byteStore, tenantID string, cfg *domain.DoctorConfig, ttl time.Duration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.Set(ctx, tenantID, ConfigKey(cfg.DoctorID), data, ttl)
}
