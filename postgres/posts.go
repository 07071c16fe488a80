package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/DanilaP/social-network-backend/api"
)

// CreatePost inserts a feed post.
func (pg *Postgres) CreatePost(ctx context.Context, p api.Post) (api.Post, error) {
	row := &post{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
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

// DeletePost removes a feed post and its comments. Only the author may
// delete.
func (pg *Postgres) DeletePost(ctx context.Context, postID, authorID string) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*post)(nil)).
			Where("id = ?", postID).
			Where("user_id = ?", authorID).
			Where("group_id IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete post: %w", mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().Model((*post)(nil)).Where("id = ?", postID).Exists(ctx)
			if err != nil {
				return fmt.Errorf("select post: %w", mapError(err))
			}
			if exists {
				return api.ErrForbidden
			}
			return api.ErrNotFound
		}
		if _, err := tx.NewDelete().Model((*comment)(nil)).Where("post_id = ?", postID).Exec(ctx); err != nil {
			return fmt.Errorf("delete comments: %w", mapError(err))
		}
		return nil
	})
}

// ListUserPosts returns the user's feed posts, newest first, comments
// attached in insertion order.
func (pg *Postgres) ListUserPosts(ctx context.Context, userID string) ([]api.Post, error) {
	var rows []post
	err := pg.bun.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("group_id IS NULL").
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", mapError(err))
	}
	return pg.attachComments(ctx, rows)
}

// ToggleLike flips the user's membership in the post's like set as one
// atomic statement and returns the post-update set.
func (pg *Postgres) ToggleLike(ctx context.Context, postID, userID string) ([]string, error) {
	return pg.toggleLikes(ctx, "posts", userID, "id = ?", postID)
}

// AddComment appends a comment to the post's comment list.
func (pg *Postgres) AddComment(ctx context.Context, c api.Comment) (api.Comment, error) {
	exists, err := pg.bun.NewSelect().Model((*post)(nil)).Where("id = ?", c.PostID).Exists(ctx)
	if err != nil {
		return api.Comment{}, fmt.Errorf("select post: %w", mapError(err))
	}
	if !exists {
		return api.Comment{}, api.ErrNotFound
	}
	row := &comment{
		ID:          uuid.NewString(),
		PostID:      c.PostID,
		UserID:      c.UserID,
		CommentText: c.Text,
		Files:       c.Files,
		Likes:       []string{},
		CreatedAt:   c.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(row).Exec(ctx); err != nil {
		return api.Comment{}, fmt.Errorf("insert comment: %w", mapError(err))
	}
	return row.APIComment(), nil
}

// DeleteComment removes exactly the matching comment. Only its author may
// delete it.
func (pg *Postgres) DeleteComment(ctx context.Context, postID, commentID, authorID string) error {
	res, err := pg.bun.NewDelete().Model((*comment)(nil)).
		Where("id = ?", commentID).
		Where("post_id = ?", postID).
		Where("user_id = ?", authorID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete comment: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := pg.bun.NewSelect().Model((*comment)(nil)).
			Where("id = ?", commentID).
			Where("post_id = ?", postID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("select comment: %w", mapError(err))
		}
		if exists {
			return api.ErrForbidden
		}
		return api.ErrNotFound
	}
	return nil
}

// ToggleCommentLike flips the user's membership in the comment's like set.
func (pg *Postgres) ToggleCommentLike(ctx context.Context, postID, commentID, userID string) ([]string, error) {
	return pg.toggleLikes(ctx, "comments", userID, "id = ? AND post_id = ?", commentID, postID)
}

// attachComments loads the comments of the given posts in one query and
// groups them by post.
func (pg *Postgres) attachComments(ctx context.Context, rows []post) ([]api.Post, error) {
	if len(rows) == 0 {
		return []api.Post{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var commentRows []comment
	err := pg.bun.NewSelect().Model(&commentRows).
		Where("post_id IN (?)", bun.In(ids)).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", mapError(err))
	}
	byPost := make(map[string][]api.Comment, len(rows))
	for _, c := range commentRows {
		byPost[c.PostID] = append(byPost[c.PostID], c.APIComment())
	}

	out := make([]api.Post, len(rows))
	for i, row := range rows {
		p := row.APIPost()
		if comments := byPost[row.ID]; comments != nil {
			p.Comments = comments
		}
		out[i] = p
	}
	return out, nil
}
