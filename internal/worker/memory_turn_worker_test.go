package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"voicedoc/internal/model"
)

type recordedTurns struct {
	turns []model.ConversationTurn
	err   error
}

func (r *recordedTurns) RecordTurn(_ context.Context, turn model.ConversationTurn) error {
	if r.err != nil {
		return r.err
	}
	r.turns = append(r.turns, turn)
	return nil
}

func TestHandleRecordsTurn(t *testing.T) {
	rec := &recordedTurns{}
	w := NewMemoryTurnWorker(nil, rec, "q", nil)

	body, _ := json.Marshal(model.ConversationTurn{ID: "7:chat:abc", UserID: "7", Question: "q", Answer: "a"})
	if err := w.handle(context.Background(), body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.turns) != 1 || rec.turns[0].ID != "7:chat:abc" {
		t.Fatalf("turns = %+v", rec.turns)
	}
}

func TestHandleRejectsMalformed(t *testing.T) {
	w := NewMemoryTurnWorker(nil, &recordedTurns{}, "q", nil)
	for _, body := range []string{"{", `{"id":"x"}`, `{"user_id":"7"}`} {
		if err := w.handle(context.Background(), []byte(body)); !errors.Is(err, errMalformedTurn) {
			t.Fatalf("handle(%s) err = %v", body, err)
		}
	}
}

func TestHandlePropagatesRecorderError(t *testing.T) {
	boom := errors.New("store down")
	w := NewMemoryTurnWorker(nil, &recordedTurns{err: boom}, "q", nil)
	body, _ := json.Marshal(model.ConversationTurn{ID: "1:chat:x", UserID: "1"})
	if err := w.handle(context.Background(), body); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
