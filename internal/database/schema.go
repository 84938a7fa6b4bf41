package database

// schemas maps database names to their embedded schema SQL.
// The ledger database is the single source of truth for account state;
// the cache database holds ephemeral operational data only.
var schemas = map[string]string{
	"ledger": ledgerSchema,
	"cache":  cacheSchema,
}

// Schema returns the embedded schema SQL for a database name.
// Tests use it to build in-memory databases with the production schema.
func Schema(name string) string {
	return schemas[name]
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    cash_balance REAL NOT NULL DEFAULT 0 CHECK (cash_balance >= 0),
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
    account_id TEXT NOT NULL REFERENCES accounts(id),
    symbol     TEXT NOT NULL,
    product    TEXT NOT NULL CHECK (product IN ('CNC', 'MIS', 'NRML')),
    quantity   INTEGER NOT NULL CHECK (quantity >= 0),
    avg_price  REAL NOT NULL CHECK (avg_price > 0),
    PRIMARY KEY (account_id, symbol, product)
);

CREATE TABLE IF NOT EXISTS positions (
    account_id TEXT NOT NULL REFERENCES accounts(id),
    symbol     TEXT NOT NULL,
    product    TEXT NOT NULL CHECK (product IN ('CNC', 'MIS', 'NRML')),
    quantity   INTEGER NOT NULL CHECK (quantity >= 0),
    avg_price  REAL NOT NULL CHECK (avg_price > 0),
    ltp        REAL NOT NULL DEFAULT 0,
    pnl        REAL NOT NULL DEFAULT 0,
    change_pct REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, symbol, product)
);

CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);

CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    account_id  TEXT NOT NULL REFERENCES accounts(id),
    symbol      TEXT NOT NULL,
    side        TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
    product     TEXT NOT NULL CHECK (product IN ('CNC', 'MIS', 'NRML')),
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    price       REAL NOT NULL CHECK (price >= 0),
    status      TEXT NOT NULL CHECK (status IN ('COMPLETED', 'PENDING', 'CANCELLED')),
    executed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, executed_at DESC);

CREATE TABLE IF NOT EXISTS transactions (
    id         TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    type       TEXT NOT NULL CHECK (type IN ('ADD', 'WITHDRAW')),
    amount     REAL NOT NULL CHECK (amount > 0),
    bank_name  TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS watchlists (
    account_id TEXT NOT NULL REFERENCES accounts(id),
    symbol     TEXT NOT NULL,
    added_at   INTEGER NOT NULL,
    PRIMARY KEY (account_id, symbol)
);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    name       TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`
