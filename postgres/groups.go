package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/DanilaP/social-network-backend/api"
)

// CreateGroup inserts a new group owned by its admin.
func (pg *Postgres) CreateGroup(ctx context.Context, g api.Group) (api.Group, error) {
	row := &group{
		ID:           uuid.NewString(),
		Name:         g.Name,
		Status:       g.Status,
		Admin:        g.Admin,
		Members:      []string{},
		JoinRequests: []string{},
	}
	if _, err := pg.bun.NewInsert().Model(row).Exec(ctx); err != nil {
		return api.Group{}, fmt.Errorf("insert group: %w", mapError(err))
	}
	return row.APIGroup(), nil
}

// DeleteGroup removes the group with its posts and comments. Only the
// admin may delete.
func (pg *Postgres) DeleteGroup(ctx context.Context, groupID, adminID string) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*group)(nil)).
			Where("id = ?", groupID).
			Where("admin = ?", adminID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete group: %w", mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return pg.explainGroupMiss(ctx, groupID)
		}
		if _, err := tx.NewDelete().Model((*comment)(nil)).
			Where("post_id IN (SELECT id FROM posts WHERE group_id = ?)", groupID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete comments: %w", mapError(err))
		}
		if _, err := tx.NewDelete().Model((*post)(nil)).Where("group_id = ?", groupID).Exec(ctx); err != nil {
			return fmt.Errorf("delete posts: %w", mapError(err))
		}
		return nil
	})
}

func (pg *Postgres) explainGroupMiss(ctx context.Context, groupID string) error {
	exists, err := pg.bun.NewSelect().Model((*group)(nil)).Where("id = ?", groupID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("select group: %w", mapError(err))
	}
	return missError(exists)
}

// ListGroups returns every group with its posts.
func (pg *Postgres) ListGroups(ctx context.Context) ([]api.Group, error) {
	var rows []group
	if err := pg.bun.NewSelect().Model(&rows).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select groups: %w", mapError(err))
	}
	if len(rows) == 0 {
		return []api.Group{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var postRows []post
	err := pg.bun.NewSelect().Model(&postRows).
		Where("group_id IN (?)", bun.In(ids)).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", mapError(err))
	}
	posts, err := pg.attachComments(ctx, postRows)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[string][]api.Post, len(rows))
	for _, p := range posts {
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p)
	}

	out := make([]api.Group, len(rows))
	for i, row := range rows {
		g := row.APIGroup()
		if groupPosts := byGroup[row.ID]; groupPosts != nil {
			g.Posts = groupPosts
		}
		out[i] = g
	}
	return out, nil
}

// applyToggleJoinRequest flips the user's entry in the group's
// join-request set and mirrors the flip in the user's own outgoing set, so
// the pair can never desynchronize. The returned flag reports the
// post-update state: true when the request is now pending. Members and the
// admin have nothing to request.
func applyToggleJoinRequest(g *group, u *user) (bool, error) {
	if slices.Contains(g.Members, u.ID) || g.Admin == u.ID {
		return false, api.ErrNoChange
	}
	if remaining, changed := removeFromSet(g.JoinRequests, u.ID); changed {
		g.JoinRequests = remaining
		u.SendedGroupRequests, _ = removeFromSet(u.SendedGroupRequests, g.ID)
		return false, nil
	}
	g.JoinRequests = addToSet(g.JoinRequests, u.ID)
	u.SendedGroupRequests = addToSet(u.SendedGroupRequests, g.ID)
	return true, nil
}

// applyAcceptJoinRequest moves a pending requester into the member set and
// clears the mirrored entry in the requester's outgoing set. Only the
// admin may accept; a request that is not pending reports api.ErrNoChange.
func applyAcceptJoinRequest(g *group, requester *user, adminID string) error {
	if g.Admin != adminID {
		return api.ErrForbidden
	}
	remaining, changed := removeFromSet(g.JoinRequests, requester.ID)
	if !changed {
		return api.ErrNoChange
	}
	g.JoinRequests = remaining
	g.Members = addToSet(g.Members, requester.ID)
	requester.SendedGroupRequests, _ = removeFromSet(requester.SendedGroupRequests, g.ID)
	return nil
}

// mutateGroupUser locks the group row then the user row, applies the
// mutation and writes both back inside one transaction. Lock order is
// fixed (group before user) so concurrent join mutations cannot deadlock.
func (pg *Postgres) mutateGroupUser(ctx context.Context, groupID, userID string, mutate func(g *group, u *user) error) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		var u user
		err = tx.NewSelect().Model(&u).Where("id = ?", userID).For("UPDATE").Scan(ctx)
		if err != nil {
			return fmt.Errorf("lock user: %w", mapError(err))
		}
		if err := mutate(g, &u); err != nil {
			return err
		}
		if err := updateGroupSets(ctx, tx, g); err != nil {
			return err
		}
		return updateRelationSets(ctx, tx, &u)
	})
}

// ToggleJoinRequest flips the user's pending join request, mirrored on
// both the group and the user.
func (pg *Postgres) ToggleJoinRequest(ctx context.Context, groupID, userID string) (bool, error) {
	var requested bool
	err := pg.mutateGroupUser(ctx, groupID, userID, func(g *group, u *user) error {
		var err error
		requested, err = applyToggleJoinRequest(g, u)
		return err
	})
	return requested, err
}

// AcceptJoinRequest admits a pending requester, all or nothing.
func (pg *Postgres) AcceptJoinRequest(ctx context.Context, groupID, adminID, requesterID string) error {
	return pg.mutateGroupUser(ctx, groupID, requesterID, func(g *group, u *user) error {
		return applyAcceptJoinRequest(g, u, adminID)
	})
}

// LeaveGroup removes the user from the member set.
func (pg *Postgres) LeaveGroup(ctx context.Context, groupID, userID string) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		remaining, changed := removeFromSet(g.Members, userID)
		if !changed {
			return api.ErrNoChange
		}
		g.Members = remaining
		return updateGroupSets(ctx, tx, g)
	})
}

// KickMember removes a member on behalf of the admin.
func (pg *Postgres) KickMember(ctx context.Context, groupID, adminID, memberID string) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.Admin != adminID {
			return api.ErrForbidden
		}
		remaining, changed := removeFromSet(g.Members, memberID)
		if !changed {
			return api.ErrNoChange
		}
		g.Members = remaining
		return updateGroupSets(ctx, tx, g)
	})
}

// CreateGroupPost appends a post to the group wall. Only the admin posts.
func (pg *Postgres) CreateGroupPost(ctx context.Context, groupID, adminID string, p api.Post) (api.Post, error) {
	var g group
	if err := pg.bun.NewSelect().Model(&g).Where("id = ?", groupID).Scan(ctx); err != nil {
		return api.Post{}, fmt.Errorf("select group: %w", mapError(err))
	}
	if g.Admin != adminID {
		return api.Post{}, api.ErrForbidden
	}
	row := &post{
		ID:        uuid.NewString(),
		UserID:    adminID,
		GroupID:   groupID,
		PostText:  p.Text,
		Files:     p.Files,
		Likes:     []string{},
		CreatedAt: p.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(row).Exec(ctx); err != nil {
		return api.Post{}, fmt.Errorf("insert post: %w", mapError(err))
	}
	return row.APIPost(), nil
}

// DeleteGroupPost removes exactly the matching wall post and its
// comments. Only the admin deletes.
func (pg *Postgres) DeleteGroupPost(ctx context.Context, groupID, adminID, postID string) error {
	var g group
	if err := pg.bun.NewSelect().Model(&g).Where("id = ?", groupID).Scan(ctx); err != nil {
		return fmt.Errorf("select group: %w", mapError(err))
	}
	if g.Admin != adminID {
		return api.ErrForbidden
	}
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*post)(nil)).
			Where("id = ?", postID).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete post: %w", mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return api.ErrNotFound
		}
		if _, err := tx.NewDelete().Model((*comment)(nil)).Where("post_id = ?", postID).Exec(ctx); err != nil {
			return fmt.Errorf("delete comments: %w", mapError(err))
		}
		return nil
	})
}

// ToggleGroupPostLike flips the user's like on a wall post.
func (pg *Postgres) ToggleGroupPostLike(ctx context.Context, groupID, postID, userID string) ([]string, error) {
	return pg.toggleLikes(ctx, "posts", userID, "id = ? AND group_id = ?", postID, groupID)
}

// AddGroupPostComment appends a comment to a wall post.
func (pg *Postgres) AddGroupPostComment(ctx context.Context, groupID, postID string, c api.Comment) (api.Comment, error) {
	exists, err := pg.bun.NewSelect().Model((*post)(nil)).
		Where("id = ?", postID).
		Where("group_id = ?", groupID).
		Exists(ctx)
	if err != nil {
		return api.Comment{}, fmt.Errorf("select post: %w", mapError(err))
	}
	if !exists {
		return api.Comment{}, api.ErrNotFound
	}
	c.PostID = postID
	return pg.AddComment(ctx, c)
}

// DeleteGroupPostComment removes a comment from a wall post on behalf of
// the admin.
func (pg *Postgres) DeleteGroupPostComment(ctx context.Context, groupID, adminID, postID, commentID string) error {
	var g group
	if err := pg.bun.NewSelect().Model(&g).Where("id = ?", groupID).Scan(ctx); err != nil {
		return fmt.Errorf("select group: %w", mapError(err))
	}
	if g.Admin != adminID {
		return api.ErrForbidden
	}
	res, err := pg.bun.NewDelete().Model((*comment)(nil)).
		Where("id = ?", commentID).
		Where("post_id = ?", postID).
		Where("post_id IN (SELECT id FROM posts WHERE group_id = ?)", groupID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete comment: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.ErrNotFound
	}
	return nil
}

func lockGroup(ctx context.Context, tx bun.Tx, groupID string) (*group, error) {
	var g group
	err := tx.NewSelect().Model(&g).Where("id = ?", groupID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock group: %w", mapError(err))
	}
	return &g, nil
}

func updateGroupSets(ctx context.Context, tx bun.Tx, g *group) error {
	_, err := tx.NewUpdate().Model(g).
		Column("members", "join_requests").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update group sets: %w", mapError(err))
	}
	return nil
}
