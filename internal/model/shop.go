package model

import (
	"context"
	"errors"
	"fmt"

	"marktbot/internal/chat"
	"marktbot/internal/storage"
)

// Shop is a permanent member listing. Shops never expire; they exist here
// because the user aggregate counts them and the admin flow toggles
// approval.
type Shop struct {
	st *storage.Store

	ID            int64
	UserID        int64
	Name          string
	Offer         string
	Location      string
	DMDescription string
	Category      string
	Approved      bool
	Message       chat.MessageRef
}

func LoadShop(ctx context.Context, st *storage.Store, id int64) (*Shop, error) {
	row, err := st.QueryOne(ctx, "shops", []storage.Cond{storage.Equals("shop_id", id)})
	if err != nil {
		return nil, fmt.Errorf("load shop %d: %w", id, err)
	}
	return &Shop{
		st:            st,
		ID:            id,
		UserID:        row.Int64("user_id"),
		Name:          row.String("name"),
		Offer:         row.String("offer"),
		Location:      row.String("location"),
		DMDescription: row.String("dm_description"),
		Category:      row.String("category"),
		Approved:      row.Bool("approved"),
		Message:       chat.MessageRef{ChatID: row.Int64("chat_id"), MessageID: row.Int64("message_id")},
	}, nil
}

// CreateShop persists a new shop for userID, bumping their shop counter.
// Returns the assigned id.
func CreateShop(ctx context.Context, st *storage.Store, userID int64, name, offer, location, category string) (int64, error) {
	u, err := EnsureUser(ctx, st, userID)
	if err != nil {
		return 0, err
	}
	id, err := st.Insert(ctx, "shops",
		[]string{"user_id", "name", "offer", "location", "category"},
		userID, name, offer, location, category)
	if err != nil {
		return 0, fmt.Errorf("create shop: %w", err)
	}
	u.AddShops(1)
	if err := u.Save(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Shop) Save(ctx context.Context) error {
	cond := []storage.Cond{storage.Equals("shop_id", s.ID)}
	for attr, v := range map[string]any{
		"user_id":        s.UserID,
		"name":           s.Name,
		"offer":          s.Offer,
		"location":       s.Location,
		"dm_description": s.DMDescription,
		"category":       s.Category,
		"approved":       s.Approved,
		"chat_id":        s.Message.ChatID,
		"message_id":     s.Message.MessageID,
	} {
		if err := s.st.Update(ctx, "shops", attr, v, cond); err != nil {
			return fmt.Errorf("save shop %d: %w", s.ID, err)
		}
	}
	return nil
}

// Delete removes the shop and decrements the owner's shop counter.
func (s *Shop) Delete(ctx context.Context) error {
	if err := s.st.Delete(ctx, "shops", []storage.Cond{storage.Equals("shop_id", s.ID)}); err != nil {
		return err
	}
	u, err := LoadUser(ctx, s.st, s.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	u.AddShops(-1)
	return u.Save(ctx)
}
