// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/testutil"
)

func TestRecordListForget(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	ledger := NewLedger(testutil.StateDB(t, Schema), fake)
	ctx := context.Background()

	first := Entry{
		OperationID: "op-1",
		Address:     cas.Compute([]byte("first")),
		Name:        "report.pdf",
		Recipients:  2,
		Reason:      "metadata publish: timeout",
	}
	if err := ledger.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	fake.Advance(time.Minute)
	second := Entry{OperationID: "op-2", Address: cas.Compute([]byte("second")), Name: "b", Recipients: 1, Reason: "x"}
	if err := ledger.Record(ctx, second); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Recording the same operation twice keeps the first entry.
	if err := ledger.Record(ctx, Entry{OperationID: "op-1", Address: second.Address, Reason: "dup"}); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}

	entries, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	got := entries[0]
	if got.OperationID != "op-1" || got.Address != first.Address || got.Name != "report.pdf" ||
		got.Recipients != 2 || got.Reason != first.Reason {
		t.Errorf("first entry = %+v", got)
	}
	if !got.RecordedAt.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("RecordedAt = %v", got.RecordedAt)
	}
	if entries[1].OperationID != "op-2" {
		t.Errorf("second entry = %+v", entries[1])
	}

	if err := ledger.Forget(ctx, "op-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	testutil.RequireKind(t, ledger.Forget(ctx, "op-1"), failure.NotFound)

	entries, err = ledger.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].OperationID != "op-2" {
		t.Errorf("after Forget: %+v", entries)
	}
}

func TestRecordRequiresOperationID(t *testing.T) {
	ledger := NewLedger(testutil.StateDB(t, Schema), nil)
	testutil.RequireKind(t, ledger.Record(context.Background(), Entry{}), failure.Invalid)
}
