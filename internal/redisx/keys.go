package redisx

import "time"

const (
	// Idempotency for sale submission: idem:sale:{external_id} -> sale_id
	KeyIdemSale = "idem:sale:%s"

	// Cache of sale status: sale_status:{sale_id} -> {"status": "..."}
	KeySaleStatus = "sale_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
