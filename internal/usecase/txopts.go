package usecase

import "github.com/jackc/pgx/v4"

// defaultTxOptions keeps ReadCommitted; per-account serialization comes from
// the advisory lock, not the isolation level.
var defaultTxOptions = pgx.TxOptions{}
