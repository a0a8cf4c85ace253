package model

import (
	"context"
	"errors"
	"fmt"

	"marktbot/internal/storage"
)

// User is the per-member aggregate record: how many live offers and shops
// the member owns. It is only ever mutated alongside an owned Offer or Shop.
type User struct {
	st *storage.Store

	ID          int64
	OffersCount int64
	ShopCount   int64
}

func LoadUser(ctx context.Context, st *storage.Store, id int64) (*User, error) {
	row, err := st.QueryOne(ctx, "users", []storage.Cond{storage.Equals("user_id", id)})
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &User{
		st:          st,
		ID:          id,
		OffersCount: row.Int64("offers_count"),
		ShopCount:   row.Int64("shop_count"),
	}, nil
}

// EnsureUser loads the user, creating a zeroed record first if none exists.
func EnsureUser(ctx context.Context, st *storage.Store, id int64) (*User, error) {
	u, err := LoadUser(ctx, st, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	_, err = st.Insert(ctx, "users",
		[]string{"user_id", "offers_count", "shop_count"}, id, 0, 0)
	if err != nil && !errors.Is(err, storage.ErrConstraint) {
		// A concurrent EnsureUser may have won the insert; reload below.
		return nil, err
	}
	return LoadUser(ctx, st, id)
}

// AddOffers adjusts the buffered offer counter, clamping at zero.
func (u *User) AddOffers(delta int64) {
	u.OffersCount += delta
	if u.OffersCount < 0 {
		u.OffersCount = 0
	}
}

// AddShops adjusts the buffered shop counter, clamping at zero.
func (u *User) AddShops(delta int64) {
	u.ShopCount += delta
	if u.ShopCount < 0 {
		u.ShopCount = 0
	}
}

func (u *User) Save(ctx context.Context) error {
	cond := []storage.Cond{storage.Equals("user_id", u.ID)}
	if err := u.st.Update(ctx, "users", "offers_count", u.OffersCount, cond); err != nil {
		return fmt.Errorf("save user %d: %w", u.ID, err)
	}
	if err := u.st.Update(ctx, "users", "shop_count", u.ShopCount, cond); err != nil {
		return fmt.Errorf("save user %d: %w", u.ID, err)
	}
	return nil
}
