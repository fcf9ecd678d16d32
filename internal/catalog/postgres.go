package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/postgres"
)

const selectProducts = `
SELECT id, name, COALESCE(description, ''), COALESCE(category, ''),
       COALESCE(vendor, ''), price, COALESCE(compare_at_price, 0),
       COALESCE(tags, '{}'), COALESCE(sku, ''), COALESCE(image_url, ''),
       COALESCE(slug, '')
FROM products
WHERE active = true
ORDER BY id`

// PostgresSource reads the product catalog from the store-of-record
// database. It is read-only; index builds call All with a deadline context.
type PostgresSource struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewPostgresSource(client *postgres.Client) *PostgresSource {
	return &PostgresSource{
		client: client,
		logger: slog.Default().With("component", "catalog-source"),
	}
}

// All returns every active product as a search document with its searchable
// text precomputed.
func (s *PostgresSource) All(ctx context.Context) ([]Document, error) {
	rows, err := s.client.DB.QueryContext(ctx, selectProducts)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, 256)
	for rows.Next() {
		var d Document
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Description, &d.Category, &d.Vendor,
			&d.Price, &d.CompareAtPrice, pq.Array(&d.Tags), &d.SKU,
			&d.Image, &d.Slug,
		); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		d.Normalize()
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}
	s.logger.Debug("catalog fetched", "documents", len(docs))
	return docs, nil
}
