package repo

import (
	"Bridgeup/internal/model"
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFlipEachReportsOnlyWonFlips(t *testing.T) {
	pending := make([]model.Message, 4)
	for i := range pending {
		pending[i].ID = primitive.NewObjectID()
	}
	// the second and fourth were read by another request in between
	taken := map[string]bool{pending[1].ID.Hex(): true, pending[3].ID.Hex(): true}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	got, err := flipEach(context.Background(), pending, at, func(_ context.Context, id string) (bool, error) {
		return !taken[id], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != pending[0].ID || got[1].ID != pending[2].ID {
		t.Fatalf("expected messages 0 and 2, got %+v", got)
	}
	for _, msg := range got {
		if !msg.IsRead || msg.ReadAt == nil || !msg.ReadAt.Equal(at) {
			t.Errorf("message %s not stamped read: %+v", msg.ID.Hex(), msg)
		}
	}
	if pending[1].IsRead {
		t.Error("input slice must not be modified")
	}
}

func TestFlipEachStopsOnError(t *testing.T) {
	pending := []model.Message{{ID: primitive.NewObjectID()}, {ID: primitive.NewObjectID()}}
	boom := errors.New("write failed")

	calls := 0
	_, err := flipEach(context.Background(), pending, time.Now(), func(context.Context, string) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("expected first error to stop the walk, got %v after %d calls", err, calls)
	}
}
