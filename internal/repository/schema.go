package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL. Amounts are NUMERIC so SUM and
// AVG stay exact on PostgreSQL; SQLite gives the column numeric affinity.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    amount NUMERIC(18,2) NOT NULL,
    status TEXT NOT NULL,
    payment_method TEXT NOT NULL,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_payer ON transactions(payer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant_status ON transactions(merchant_id, status);
`

// One row per merchant; created lazily with the default limits.
const schemaMerchantRiskConfigs = `
CREATE TABLE IF NOT EXISTS merchant_risk_configs (
    merchant_id TEXT PRIMARY KEY,
    low_risk_threshold INTEGER NOT NULL,
    medium_risk_threshold INTEGER NOT NULL,
    high_risk_threshold INTEGER NOT NULL,
    critical_risk_threshold INTEGER NOT NULL,
    max_transaction_amount NUMERIC(18,2) NOT NULL,
    daily_limit NUMERIC(18,2) NOT NULL,
    max_transactions_per_hour INTEGER NOT NULL,
    max_transactions_per_day INTEGER NOT NULL,
    max_same_amount_in_hour INTEGER NOT NULL,
    max_failed_attempts_per_hour INTEGER NOT NULL,
    auto_block_high_risk INTEGER NOT NULL DEFAULT 1,
    auto_block_critical INTEGER NOT NULL DEFAULT 1,
    require_manual_review INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    amount NUMERIC(18,2) NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    status TEXT NOT NULL,
    rules_triggered TEXT NOT NULL,
    metadata TEXT,
    review_notes TEXT,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_merchant ON fraud_alerts(merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(status);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_created ON fraud_alerts(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaMerchantRiskConfigs,
		schemaFraudAlerts,
	}
}
