package app

import (
	"errors"
	"testing"

	"custody-go/internal/testutil"
)

func TestNewOperation(t *testing.T) {
	clock := testutil.FixedClock()
	ids := testutil.NewStubIDGenerator()

	tests := []struct {
		name   string
		op     string
		wantID string
	}{
		{name: "first operation", op: "CreateDocument", wantID: "id-1"},
		{name: "second operation", op: "ShareDocument", wantID: "id-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.op, ids, clock)

			if op.Name != tt.op {
				t.Errorf("Name = %q, want %q", op.Name, tt.op)
			}
			if op.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", op.ID, tt.wantID)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if !op.StartedAt.Equal(clock.Now()) {
				t.Errorf("StartedAt = %v, want %v", op.StartedAt, clock.Now())
			}
		})
	}
}

func TestOperation_Record(t *testing.T) {
	op := NewOperation("AccessDocument", testutil.NewStubIDGenerator(), testutil.FixedClock())

	if err := op.Record(nil); err != nil || op.Failed() {
		t.Fatalf("Record(nil) = %v, Failed() = %v, want nil, false", err, op.Failed())
	}

	boom := errors.New("boom")
	if err := op.Record(boom); !errors.Is(err, boom) {
		t.Errorf("Record() = %v, want %v", err, boom)
	}
	if !op.Failed() || op.Status != "error" || !errors.Is(op.Err, boom) {
		t.Errorf("after Record(err): Status = %q, Err = %v", op.Status, op.Err)
	}

	op.Record(nil)
	if !op.Failed() {
		t.Error("Record(nil) after a failure cleared the error status")
	}
}
