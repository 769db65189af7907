package timescaledb

import "context"

// CheckHealth pings TimescaleDB and runs a trivial query
func (t *Storage) CheckHealth(ctx context.Context) error {
	return t.client.Ping(ctx)
}
