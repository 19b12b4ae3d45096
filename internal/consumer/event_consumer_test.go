package consumer

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

type fakeLoader struct {
	items map[string]domain.TrackableItem
	err   error
}

func (f *fakeLoader) GetItem(_ context.Context, kind domain.ItemKind, id string) (domain.TrackableItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[string(kind)+":"+id]
	if !ok {
		return nil, errors.NewNotFoundError("not found", nil)
	}
	return item, nil
}

type fakeReconciler struct {
	reconciled []string
	cancelled  []string
	err        error
}

func (f *fakeReconciler) ReconcileItem(_ context.Context, item domain.TrackableItem) error {
	f.reconciled = append(f.reconciled, item.ItemID())
	return f.err
}

func (f *fakeReconciler) CancelItem(_ context.Context, _ domain.ItemKind, id string) error {
	f.cancelled = append(f.cancelled, id)
	return f.err
}

func TestEventConsumer_Handle(t *testing.T) {
	loader := &fakeLoader{items: map[string]domain.TrackableItem{
		"extinguisher:e1": &domain.Extinguisher{ID: "e1", Status: domain.ItemStatusActive},
		"equipment:q1":    &domain.Equipment{ID: "q1", Status: domain.ItemStatusDecommissioned},
	}}

	tests := []struct {
		name           string
		body           string
		want           outcome
		wantReconciled []string
		wantCancelled  []string
	}{
		{name: "saved", body: `{"type":"item.saved","kind":"extinguisher","id":"e1"}`, want: outcomeAck, wantReconciled: []string{"e1"}},
		{name: "deleted", body: `{"type":"item.deleted","kind":"facility","id":"f1"}`, want: outcomeAck, wantCancelled: []string{"f1"}},
		{name: "saved but gone", body: `{"type":"item.saved","kind":"extinguisher","id":"e9"}`, want: outcomeAck, wantCancelled: []string{"e9"}},
		{name: "decommissioned", body: `{"type":"item.saved","kind":"equipment","id":"q1"}`, want: outcomeAck, wantCancelled: []string{"q1"}},
		{name: "malformed", body: `{not json`, want: outcomeReject},
		{name: "unknown kind", body: `{"type":"item.saved","kind":"boat","id":"b1"}`, want: outcomeReject},
		{name: "unknown type", body: `{"type":"item.moved","kind":"facility","id":"f1"}`, want: outcomeReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReconciler{}
			c := NewEventConsumer(nil, "inventory", "q", loader, r, logger.NewNop())

			assert.Equal(t, tt.want, c.handle(context.Background(), []byte(tt.body)))
			assert.Equal(t, tt.wantReconciled, r.reconciled)
			assert.Equal(t, tt.wantCancelled, r.cancelled)
		})
	}
}

func TestEventConsumer_HandleRetriesOnFailure(t *testing.T) {
	body := []byte(`{"type":"item.saved","kind":"extinguisher","id":"e1"}`)

	c := NewEventConsumer(nil, "inventory", "q", &fakeLoader{err: errors.NewDataSourceError("timeout", nil)}, &fakeReconciler{}, logger.NewNop())
	assert.Equal(t, outcomeRetry, c.handle(context.Background(), body))

	loader := &fakeLoader{items: map[string]domain.TrackableItem{"extinguisher:e1": &domain.Extinguisher{ID: "e1"}}}
	c = NewEventConsumer(nil, "inventory", "q", loader, &fakeReconciler{err: stderrors.New("boom")}, logger.NewNop())
	assert.Equal(t, outcomeRetry, c.handle(context.Background(), body))
}
