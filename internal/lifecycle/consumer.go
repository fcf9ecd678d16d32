package lifecycle

import (
	"context"
	"log/slog"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/config"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/kafka"
)

// CatalogChange is the event published by the commerce backend whenever
// products change. Upserts carry the changed documents; a truncating change
// (bulk import, mass delete) sets FullRebuild instead, since patches cannot
// remove entries.
type CatalogChange struct {
	FullRebuild bool               `json:"full_rebuild"`
	Documents   []catalog.Document `json:"documents"`
}

// NewCatalogConsumer returns a Kafka consumer that feeds catalog-change
// events into the lifecycle manager: incremental patches for upserts, a full
// rebuild otherwise.
func NewCatalogConsumer(cfg config.KafkaConfig, mgr *Manager) *kafka.Consumer {
	logger := slog.Default().With("component", "catalog-consumer")
	return kafka.NewConsumer(cfg, cfg.Topics.CatalogChanges, func(ctx context.Context, key, value []byte) error {
		change, err := kafka.DecodeJSON[CatalogChange](value)
		if err != nil {
			return err
		}
		if change.FullRebuild {
			logger.Info("catalog change requests full rebuild", "key", string(key))
			return mgr.Rebuild(ctx)
		}
		if len(change.Documents) == 0 {
			return nil
		}
		indexed, err := mgr.Refresh(ctx, true, change.Documents)
		if err != nil {
			return err
		}
		logger.Info("catalog change applied", "key", string(key), "documents", indexed)
		return nil
	})
}
