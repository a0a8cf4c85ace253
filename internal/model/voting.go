package model

import (
	"context"
	"fmt"
	"time"

	"marktbot/internal/chat"
	"marktbot/internal/storage"
)

// Voting is a poll that closes a fixed duration after creation. The
// deadline is stored alongside wait/create time at creation and is never
// recomputed afterwards.
type Voting struct {
	st *storage.Store

	ID          int64
	UserID      int64
	Message     chat.MessageRef
	Deadline    time.Time
	Description string
	Wait        time.Duration
	Created     time.Time
}

func LoadVoting(ctx context.Context, st *storage.Store, id int64) (*Voting, error) {
	row, err := st.QueryOne(ctx, "votings", []storage.Cond{storage.Equals("voting_id", id)})
	if err != nil {
		return nil, fmt.Errorf("load voting %d: %w", id, err)
	}
	return &Voting{
		st:          st,
		ID:          id,
		UserID:      row.Int64("user_id"),
		Message:     chat.MessageRef{ChatID: row.Int64("chat_id"), MessageID: row.Int64("message_id")},
		Deadline:    time.Unix(row.Int64("deadline"), 0),
		Description: row.String("description"),
		Wait:        time.Duration(row.Int64("wait_time")) * time.Second,
		Created:     time.Unix(row.Int64("create_time"), 0),
	}, nil
}

// CreateVoting persists a new voting closing wait from now.
// Returns the assigned id.
func CreateVoting(ctx context.Context, st *storage.Store, userID int64, description string, wait time.Duration) (int64, error) {
	if _, err := EnsureUser(ctx, st, userID); err != nil {
		return 0, err
	}
	now := time.Now()
	id, err := st.Insert(ctx, "votings",
		[]string{"user_id", "description", "deadline", "wait_time", "create_time"},
		userID, description, now.Add(wait).Unix(), int64(wait.Seconds()), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("create voting: %w", err)
	}
	return id, nil
}

func (v *Voting) Save(ctx context.Context) error {
	cond := []storage.Cond{storage.Equals("voting_id", v.ID)}
	for attr, val := range map[string]any{
		"chat_id":     v.Message.ChatID,
		"message_id":  v.Message.MessageID,
		"description": v.Description,
	} {
		if err := v.st.Update(ctx, "votings", attr, val, cond); err != nil {
			return fmt.Errorf("save voting %d: %w", v.ID, err)
		}
	}
	return nil
}

func (v *Voting) Delete(ctx context.Context) error {
	return v.st.Delete(ctx, "votings", []storage.Cond{storage.Equals("voting_id", v.ID)})
}
