package migrate

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
}

func TestInitMigrationContainsConstraints(t *testing.T) {
	data, err := migrations.ReadFile(Dir + "/20261001090000_init_inventory.sql")
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)",
		"resulting_balance INTEGER NOT NULL CHECK (resulting_balance >= 0)",
		"CONSTRAINT requests_number_key UNIQUE (number)",
		"CONSTRAINT distribution_orders_request_id_key UNIQUE (request_id)",
		"CONSTRAINT outbound_handovers_order_id_key UNIQUE (order_id)",
		"CONSTRAINT inbound_handovers_document_number_key UNIQUE (document_number)",
		"CONSTRAINT inbound_handovers_invoice_number_key UNIQUE (invoice_number)",
		"PRIMARY KEY (request_id, item_id)",
		"PRIMARY KEY (session_id, item_id)",
		"DROP TABLE IF EXISTS stock_ledger",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"migrations/init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"migrations/20260101000000_init.sql": {Data: []byte("-- +goose Up\n")},
		},
		"duplicate version": {
			"migrations/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"migrations/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		if err := validateFS(fsys, Dir); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
