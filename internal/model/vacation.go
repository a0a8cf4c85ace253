package model

import (
	"context"
	"fmt"
	"time"

	"marktbot/internal/chat"
	"marktbot/internal/storage"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// Vacation is an absence notice that lapses at the end of a calendar date.
// Expiry compares the end date to "today", not to a wall-clock instant.
type Vacation struct {
	st *storage.Store

	ID      int64
	EndDate time.Time // midnight, date component only
	Message chat.MessageRef
}

func LoadVacation(ctx context.Context, st *storage.Store, id int64) (*Vacation, error) {
	row, err := st.QueryOne(ctx, "vacations", []storage.Cond{storage.Equals("vacation_id", id)})
	if err != nil {
		return nil, fmt.Errorf("load vacation %d: %w", id, err)
	}
	end, err := time.Parse(DateLayout, row.String("end_date"))
	if err != nil {
		return nil, fmt.Errorf("load vacation %d: bad end_date: %w", id, err)
	}
	return &Vacation{
		st:      st,
		ID:      id,
		EndDate: end,
		Message: chat.MessageRef{ChatID: row.Int64("chat_id"), MessageID: row.Int64("message_id")},
	}, nil
}

// CreateVacation persists a new vacation notice and returns the assigned id.
func CreateVacation(ctx context.Context, st *storage.Store, endDate time.Time) (int64, error) {
	id, err := st.Insert(ctx, "vacations",
		[]string{"end_date"}, endDate.Format(DateLayout))
	if err != nil {
		return 0, fmt.Errorf("create vacation: %w", err)
	}
	return id, nil
}

// Ended reports whether the vacation is over on the given day. The
// argument must be a bare date (midnight UTC), as returned by Date.
func (v *Vacation) Ended(today time.Time) bool {
	return !v.EndDate.After(today)
}

// Date normalizes t to the bare calendar date used for vacation
// comparisons, discarding time of day and location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (v *Vacation) Save(ctx context.Context) error {
	cond := []storage.Cond{storage.Equals("vacation_id", v.ID)}
	for attr, val := range map[string]any{
		"end_date":   v.EndDate.Format(DateLayout),
		"chat_id":    v.Message.ChatID,
		"message_id": v.Message.MessageID,
	} {
		if err := v.st.Update(ctx, "vacations", attr, val, cond); err != nil {
			return fmt.Errorf("save vacation %d: %w", v.ID, err)
		}
	}
	return nil
}

func (v *Vacation) Delete(ctx context.Context) error {
	return v.st.Delete(ctx, "vacations", []storage.Cond{storage.Equals("vacation_id", v.ID)})
}
