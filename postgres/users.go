package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/DanilaP/social-network-backend/api"
)

const defaultRole = "user"

// CreateUser inserts a new account. A duplicate email reports
// api.ErrExists.
func (pg *Postgres) CreateUser(ctx context.Context, u api.User) (api.User, error) {
	row := &user{
		ID:                   uuid.NewString(),
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		Name:                 u.Name,
		Avatar:               u.Avatar,
		Status:               u.Status,
		Role:                 defaultRole,
		Friends:              []string{},
		FriendRequests:       []string{},
		SendedFriendRequests: []string{},
		SendedGroupRequests:  []string{},
		Dialogs:              []string{},
	}
	if _, err := pg.bun.NewInsert().Model(row).Exec(ctx); err != nil {
		return api.User{}, fmt.Errorf("insert user: %w", mapError(err))
	}
	return row.APIUser(), nil
}

func (pg *Postgres) GetUser(ctx context.Context, id string) (api.User, error) {
	var row user
	err := pg.bun.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return api.User{}, fmt.Errorf("select user: %w", mapError(err))
	}
	return row.APIUser(), nil
}

func (pg *Postgres) GetUserByEmail(ctx context.Context, email string) (api.User, error) {
	var row user
	err := pg.bun.NewSelect().Model(&row).Where("email = ?", email).Scan(ctx)
	if err != nil {
		return api.User{}, fmt.Errorf("select user: %w", mapError(err))
	}
	return row.APIUser(), nil
}

// ListUsers returns the public profile of every account.
func (pg *Postgres) ListUsers(ctx context.Context) ([]api.Profile, error) {
	var rows []user
	err := pg.bun.NewSelect().Model(&rows).
		Column("id", "name", "avatar", "status").
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", mapError(err))
	}
	out := make([]api.Profile, len(rows))
	for i, row := range rows {
		out[i] = row.APIProfile()
	}
	return out, nil
}

// ListProfiles resolves a batch of user IDs to public profiles. Unknown
// IDs are silently skipped.
func (pg *Postgres) ListProfiles(ctx context.Context, ids []string) ([]api.Profile, error) {
	if len(ids) == 0 {
		return []api.Profile{}, nil
	}
	var rows []user
	err := pg.bun.NewSelect().Model(&rows).
		Column("id", "name", "avatar", "status").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", mapError(err))
	}
	out := make([]api.Profile, len(rows))
	for i, row := range rows {
		out[i] = row.APIProfile()
	}
	return out, nil
}

// UpdateProfile applies the non-nil profile fields and returns the updated
// account.
func (pg *Postgres) UpdateProfile(ctx context.Context, id string, upd api.ProfileUpdate) (api.User, error) {
	q := pg.bun.NewUpdate().Model((*user)(nil)).Where("id = ?", id)
	changed := false
	if upd.Name != nil {
		q = q.Set("name = ?", *upd.Name)
		changed = true
	}
	if upd.Avatar != nil {
		q = q.Set("avatar = ?", *upd.Avatar)
		changed = true
	}
	if upd.Status != nil {
		q = q.Set("status = ?", *upd.Status)
		changed = true
	}
	if changed {
		res, err := q.Exec(ctx)
		if err != nil {
			return api.User{}, fmt.Errorf("update user: %w", mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return api.User{}, api.ErrNotFound
		}
	}
	return pg.GetUser(ctx, id)
}

func (pg *Postgres) DeleteUser(ctx context.Context, id string) error {
	res, err := pg.bun.NewDelete().Model((*user)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// lockUserPair loads both user rows FOR UPDATE, always locking in id order
// so two concurrent relation mutations cannot deadlock. Either row missing
// reports api.ErrNotFound.
func lockUserPair(ctx context.Context, tx bun.Tx, firstID, secondID string) (*user, *user, error) {
	var rows []user
	err := tx.NewSelect().Model(&rows).
		Where("id IN (?)", bun.In([]string{firstID, secondID})).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("lock users: %w", mapError(err))
	}
	if len(rows) != 2 {
		return nil, nil, api.ErrNotFound
	}
	if rows[0].ID == firstID {
		return &rows[0], &rows[1], nil
	}
	return &rows[1], &rows[0], nil
}

func updateRelationSets(ctx context.Context, tx bun.Tx, row *user) error {
	_, err := tx.NewUpdate().Model(row).
		Column("friends", "friend_requests", "sended_friend_requests", "sended_group_requests", "dialogs").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update relation sets: %w", mapError(err))
	}
	return nil
}

// applySendFriendRequest records a pending request on both rows: to gains
// an incoming request, from gains an outgoing one. Both rows change or
// neither does.
func applySendFriendRequest(from, to *user) error {
	if slices.Contains(from.SendedFriendRequests, to.ID) || slices.Contains(from.Friends, to.ID) {
		return api.ErrNoChange
	}
	from.SendedFriendRequests = addToSet(from.SendedFriendRequests, to.ID)
	to.FriendRequests = addToSet(to.FriendRequests, from.ID)
	return nil
}

// applyDeleteFriendRequest withdraws a pending request from both rows.
func applyDeleteFriendRequest(from, to *user) error {
	sended, changed := removeFromSet(from.SendedFriendRequests, to.ID)
	if !changed {
		return api.ErrNoChange
	}
	from.SendedFriendRequests = sended
	to.FriendRequests, _ = removeFromSet(to.FriendRequests, from.ID)
	return nil
}

// applyAcceptFriendRequest turns a pending request into a symmetric
// friendship: the request leaves both request sets and the friendship
// enters both friend sets.
func applyAcceptFriendRequest(u, requester *user) error {
	requests, changed := removeFromSet(u.FriendRequests, requester.ID)
	if !changed {
		return api.ErrNoChange
	}
	u.FriendRequests = requests
	u.Friends = addToSet(u.Friends, requester.ID)
	requester.SendedFriendRequests, _ = removeFromSet(requester.SendedFriendRequests, u.ID)
	requester.Friends = addToSet(requester.Friends, u.ID)
	return nil
}

// applyDeleteFriend removes a symmetric friendship from both rows.
func applyDeleteFriend(u, friend *user) error {
	friends, changed := removeFromSet(u.Friends, friend.ID)
	if !changed {
		return api.ErrNoChange
	}
	u.Friends = friends
	friend.Friends, _ = removeFromSet(friend.Friends, u.ID)
	return nil
}

// mutateUserPair locks both rows, applies the mutation and writes both
// back, all inside one transaction.
func (pg *Postgres) mutateUserPair(ctx context.Context, firstID, secondID string, mutate func(first, second *user) error) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		first, second, err := lockUserPair(ctx, tx, firstID, secondID)
		if err != nil {
			return err
		}
		if err := mutate(first, second); err != nil {
			return err
		}
		if err := updateRelationSets(ctx, tx, first); err != nil {
			return err
		}
		return updateRelationSets(ctx, tx, second)
	})
}

// SendFriendRequest records a pending request on both sides as one atomic
// unit.
func (pg *Postgres) SendFriendRequest(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return api.ErrNoChange
	}
	return pg.mutateUserPair(ctx, fromID, toID, applySendFriendRequest)
}

// DeleteFriendRequest withdraws a pending request from both sides.
// Reports api.ErrNoChange when no such request was pending.
func (pg *Postgres) DeleteFriendRequest(ctx context.Context, fromID, toID string) error {
	return pg.mutateUserPair(ctx, fromID, toID, applyDeleteFriendRequest)
}

// AcceptFriendRequest turns a pending request into a symmetric friendship.
// Both relation sets change or neither does.
func (pg *Postgres) AcceptFriendRequest(ctx context.Context, userID, requesterID string) error {
	return pg.mutateUserPair(ctx, userID, requesterID, applyAcceptFriendRequest)
}

// DeleteFriend removes a symmetric friendship from both sides.
func (pg *Postgres) DeleteFriend(ctx context.Context, userID, friendID string) error {
	return pg.mutateUserPair(ctx, userID, friendID, applyDeleteFriend)
}
