package dunning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TemplateCache keeps organization templates in Redis so a sweep over
// thousands of invoices does not re-read the same few template rows per
// invoice. Absence is cached too; the default template covers that case.
type TemplateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTemplateCache instantiates the cache helper.
func NewTemplateCache(client *redis.Client, ttl time.Duration) *TemplateCache {
	return &TemplateCache{client: client, ttl: ttl}
}

// TemplateLoader loads a template row from persistence. A nil row with a
// nil error means the organization has no template for the level.
type TemplateLoader func(ctx context.Context, organizationID int64, level Level) (*Template, error)

func templateKey(organizationID int64, level Level) string {
	return fmt.Sprintf("dunning:template:%d:%s", organizationID, level)
}

// Fetch returns the cached template or populates the cache through the
// loader. Cache failures degrade to a direct load.
func (c *TemplateCache) Fetch(ctx context.Context, organizationID int64, level Level, loader TemplateLoader) (*Template, error) {
	if c == nil || c.client == nil {
		return loader(ctx, organizationID, level)
	}
	key := templateKey(organizationID, level)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var row *Template
		if err := json.Unmarshal(payload, &row); err == nil {
			return row, nil
		}
		// Corrupt entry; fall through and rebuild it.
	} else if err != redis.Nil {
		return loader(ctx, organizationID, level)
	}

	row, err := loader(ctx, organizationID, level)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(row); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return row, nil
}

// Invalidate drops the cached entry after a template is saved.
func (c *TemplateCache) Invalidate(ctx context.Context, organizationID int64, level Level) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, templateKey(organizationID, level)).Err()
}
