package infra

// Schema holds the Postgres DDL for users, accounts and the append-only ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	role          TEXT NOT NULL,
	password_hash BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS account_number_counters (
	account_type TEXT PRIMARY KEY,
	last_value   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id             UUID PRIMARY KEY,
	seq            BIGINT GENERATED ALWAYS AS IDENTITY UNIQUE,
	account_number TEXT NOT NULL UNIQUE,
	owner_id       UUID NOT NULL,
	account_type   TEXT NOT NULL CHECK (account_type IN ('ASSET','LIABILITY','EQUITY','INCOME','EXPENSE')),
	currency       CHAR(3) NOT NULL,
	balance        NUMERIC(30,8) NOT NULL DEFAULT 0,
	status         TEXT NOT NULL CHECK (status IN ('ACTIVE','SUSPENDED','CLOSED')),
	metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner_id, seq);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES ledger_transactions (id),
	account_id     UUID NOT NULL REFERENCES accounts (id),
	amount         NUMERIC(30,8) NOT NULL CHECK (amount > 0),
	direction      TEXT NOT NULL CHECK (direction IN ('DEBIT','CREDIT')),
	description    TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

DROP INDEX IF EXISTS ledger_entries_account_idx;
CREATE INDEX IF NOT EXISTS ledger_entries_account_id_idx ON ledger_entries (account_id, id);
CREATE INDEX IF NOT EXISTS ledger_entries_transaction_idx ON ledger_entries (transaction_id);

CREATE OR REPLACE FUNCTION ledger_entries_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger entries are append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries;
CREATE TRIGGER ledger_entries_append_only
	BEFORE UPDATE OR DELETE ON ledger_entries
	FOR EACH ROW EXECUTE FUNCTION ledger_entries_append_only();
`
