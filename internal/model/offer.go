package model

import (
	"context"
	"fmt"
	"time"

	"marktbot/internal/chat"
	"marktbot/internal/storage"
)

// Offer is a time-limited sale listing. Once its deadline passes it is
// eligible for expiry exactly once.
type Offer struct {
	st *storage.Store

	ID          int64
	UserID      int64
	Title       string
	Message     chat.MessageRef
	Deadline    time.Time
	Description string
	Price       string
}

func LoadOffer(ctx context.Context, st *storage.Store, id int64) (*Offer, error) {
	row, err := st.QueryOne(ctx, "offers", []storage.Cond{storage.Equals("offer_id", id)})
	if err != nil {
		return nil, fmt.Errorf("load offer %d: %w", id, err)
	}
	return &Offer{
		st:          st,
		ID:          id,
		UserID:      row.Int64("user_id"),
		Title:       row.String("title"),
		Message:     chat.MessageRef{ChatID: row.Int64("chat_id"), MessageID: row.Int64("message_id")},
		Deadline:    time.Unix(row.Int64("deadline"), 0),
		Description: row.String("description"),
		Price:       row.String("price"),
	}, nil
}

// CreateOffer persists a new offer, creating the owner's user record if
// needed and bumping their offer counter. Returns the assigned id.
func CreateOffer(ctx context.Context, st *storage.Store, userID int64, title string, deadline time.Time, description, price string) (int64, error) {
	u, err := EnsureUser(ctx, st, userID)
	if err != nil {
		return 0, err
	}
	id, err := st.Insert(ctx, "offers",
		[]string{"user_id", "title", "deadline", "description", "price"},
		userID, title, deadline.Unix(), description, price)
	if err != nil {
		return 0, fmt.Errorf("create offer: %w", err)
	}
	u.AddOffers(1)
	if err := u.Save(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (o *Offer) Save(ctx context.Context) error {
	cond := []storage.Cond{storage.Equals("offer_id", o.ID)}
	for attr, v := range map[string]any{
		"title":       o.Title,
		"chat_id":     o.Message.ChatID,
		"message_id":  o.Message.MessageID,
		"deadline":    o.Deadline.Unix(),
		"description": o.Description,
		"price":       o.Price,
	} {
		if err := o.st.Update(ctx, "offers", attr, v, cond); err != nil {
			return fmt.Errorf("save offer %d: %w", o.ID, err)
		}
	}
	return nil
}

func (o *Offer) Delete(ctx context.Context) error {
	return o.st.Delete(ctx, "offers", []storage.Cond{storage.Equals("offer_id", o.ID)})
}
