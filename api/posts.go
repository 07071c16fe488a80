package api

import (
	"errors"
	"net/http"
	"slices"
	"time"
)

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text  string `json:"text" validate:"required"`
		Files []File `json:"files"`
	}
	type response struct {
		Message string `json:"message"`
		Post    Post   `json:"post"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	post, err := a.Posts.CreatePost(ctx, Post{
		UserID:    userID,
		Text:      body.Text,
		Files:     body.Files,
		CreatedAt: time.Now(),
	})
	if err != nil {
		a.respondStoreError(w, err, "Could not create post")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Post created", Post: post})
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	postID := r.URL.Query().Get("id")
	if postID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing post id"), "Missing post id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Posts.DeletePost(ctx, postID, userID); err != nil {
		a.respondStoreError(w, err, "Could not delete post")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Post deleted"})
}

func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
		Posts   []Post `json:"posts"`
	}

	viewerID, ok := a.identify(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("id")
	if userID == "" {
		userID = viewerID
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	posts, err := a.Posts.ListUserPosts(ctx, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not list posts")
		return
	}
	for i := range posts {
		posts[i].IsLiked = slices.Contains(posts[i].Likes, viewerID)
	}
	if posts == nil {
		posts = []Post{}
	}

	a.respond(w, http.StatusOK, response{Message: "Post list", Posts: posts})
}

func (a *API) likePost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ID string `json:"id" validate:"required"`
	}
	type response struct {
		Message     string `json:"message"`
		LikesNumber int    `json:"likesNumber"`
		IsLiked     bool   `json:"isLiked"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	likes, err := a.Posts.ToggleLike(ctx, body.ID, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not toggle like")
		return
	}

	// The flag is derived from the post-update state the store returned,
	// never from the state observed before the toggle.
	a.respond(w, http.StatusOK, response{
		Message:     "Like toggled",
		LikesNumber: len(likes),
		IsLiked:     slices.Contains(likes, userID),
	})
}

func (a *API) addComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		PostID string `json:"postId" validate:"required"`
		Text   string `json:"text" validate:"required"`
		Files  []File `json:"files"`
	}
	type response struct {
		Message string  `json:"message"`
		Comment Comment `json:"comment"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	comment, err := a.Posts.AddComment(ctx, Comment{
		PostID:    body.PostID,
		UserID:    userID,
		Text:      body.Text,
		Files:     body.Files,
		CreatedAt: time.Now(),
	})
	if err != nil {
		a.respondStoreError(w, err, "Could not add comment")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Comment added", Comment: comment})
}

func (a *API) deleteComment(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	postID, commentID := q.Get("postId"), q.Get("commentId")
	if postID == "" || commentID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing postId or commentId"), "Missing postId or commentId")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Posts.DeleteComment(ctx, postID, commentID, userID); err != nil {
		a.respondStoreError(w, err, "Could not delete comment")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Comment deleted"})
}

func (a *API) likeComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		PostID    string `json:"postId" validate:"required"`
		CommentID string `json:"commentId" validate:"required"`
	}
	type response struct {
		Message     string `json:"message"`
		LikesNumber int    `json:"likesNumber"`
		IsLiked     bool   `json:"isLiked"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	likes, err := a.Posts.ToggleCommentLike(ctx, body.PostID, body.CommentID, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not toggle comment like")
		return
	}

	a.respond(w, http.StatusOK, response{
		Message:     "Like toggled",
		LikesNumber: len(likes),
		IsLiked:     slices.Contains(likes, userID),
	})
}
