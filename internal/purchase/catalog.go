// Package purchase credits the balance from verified store purchases. A
// transaction is applied at most once no matter how many times the client
// retries confirmation.
package purchase

import (
	"sync"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

// Catalog maps store product identifiers to the credits they grant. The
// mapping is hot-reloadable so pricing changes do not need a deploy.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]int64
}

// NewCatalog builds the catalog from configuration.
func NewCatalog(products map[string]int64) *Catalog {
	c := &Catalog{}
	c.Reload(products)
	return c
}

// Reload replaces the product mapping.
func (c *Catalog) Reload(products map[string]int64) {
	copied := make(map[string]int64, len(products))
	for id, credits := range products {
		if credits > 0 {
			copied[id] = credits
		}
	}

	c.mu.Lock()
	c.products = copied
	c.mu.Unlock()
}

// Watch subscribes the catalog to config reloads.
func (c *Catalog) Watch(watcher *config.Watcher) {
	if watcher == nil {
		return
	}

	watcher.Subscribe(func(cfg *config.Config) {
		c.Reload(cfg.Products)
	})
}

// Credits returns the grant for a product and whether the product is known.
func (c *Catalog) Credits(productID string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	credits, ok := c.products[productID]
	return credits, ok
}
