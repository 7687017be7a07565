package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// statementResult is the per-statement envelope of a query response.
type statementResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// query runs a single SurrealQL statement and returns its raw result.
func (db *appdbimpl) query(ctx context.Context, sql string) (json.RawMessage, error) {
	raw, err := db.c.call(ctx, "query", sql)
	if err != nil {
		return nil, err
	}

	var statements []statementResult
	if err := json.Unmarshal(raw, &statements); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}
	if len(statements) != 1 {
		return nil, fmt.Errorf("expected 1 statement result, got %d", len(statements))
	}

	st := statements[0]
	if st.Status != "OK" {
		var msg string
		if err := json.Unmarshal(st.Result, &msg); err != nil || msg == "" {
			msg = "statement failed with status " + st.Status
		}
		return nil, errors.New(msg)
	}
	return st.Result, nil
}

func (db *appdbimpl) Customers(ctx context.Context) ([]json.RawMessage, error) {
	raw, err := db.query(ctx, "SELECT * FROM customer")
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}

	var customers []json.RawMessage
	if err := json.Unmarshal(raw, &customers); err != nil {
		return nil, fmt.Errorf("decoding customers: %w", err)
	}
	if customers == nil {
		customers = []json.RawMessage{}
	}
	return customers, nil
}

func (db *appdbimpl) Info(ctx context.Context) (json.RawMessage, error) {
	raw, err := db.query(ctx, "INFO FOR DB")
	if err != nil {
		return nil, fmt.Errorf("fetching info for %s/%s: %w", db.namespace, db.name, err)
	}
	return raw, nil
}
