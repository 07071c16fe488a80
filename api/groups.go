package api

import (
	"errors"
	"net/http"
	"slices"
	"time"
)

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Name   string `json:"name" validate:"required"`
		Status string `json:"status" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
		Group   Group  `json:"group"`
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
	group, err := a.Groups.CreateGroup(ctx, Group{
		Name:   body.Name,
		Status: body.Status,
		Admin:  userID,
	})
	if err != nil {
		a.respondStoreError(w, err, "Could not create group")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Group created", Group: group})
}

func (a *API) deleteGroup(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	groupID := r.URL.Query().Get("id")
	if groupID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing group id"), "Missing group id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Groups.DeleteGroup(ctx, groupID, userID); err != nil {
		a.respondStoreError(w, err, "Could not delete group")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Group deleted"})
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string  `json:"message"`
		Groups  []Group `json:"groups"`
	}

	if _, ok := a.identify(w, r); !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	groups, err := a.Groups.ListGroups(ctx)
	if err != nil {
		a.respondStoreError(w, err, "Could not list groups")
		return
	}
	if groups == nil {
		groups = []Group{}
	}

	a.respond(w, http.StatusOK, response{Message: "Group list", Groups: groups})
}

func (a *API) joinGroup(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ID string `json:"id" validate:"required"`
	}
	type response struct {
		Message   string `json:"message"`
		Requested bool   `json:"requested"`
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
	requested, err := a.Groups.ToggleJoinRequest(ctx, body.ID, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not toggle join request")
		return
	}

	msg := "Join request withdrawn"
	if requested {
		msg = "Join request sent"
	}
	a.respond(w, http.StatusOK, response{Message: msg, Requested: requested})
}

func (a *API) acceptJoinRequest(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ID        string `json:"id" validate:"required"`
		RequestID string `json:"requestId" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
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
	if err := a.Groups.AcceptJoinRequest(ctx, body.ID, userID, body.RequestID); err != nil {
		a.respondStoreError(w, err, "Could not accept join request")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Join request accepted"})
}

func (a *API) leaveGroup(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ID string `json:"id" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
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
	if err := a.Groups.LeaveGroup(ctx, body.ID, userID); err != nil {
		a.respondStoreError(w, err, "Could not leave group")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Left the group"})
}

func (a *API) kickMember(w http.ResponseWriter, r *http.Request) {
	type request struct {
		GroupID  string `json:"groupId" validate:"required"`
		MemberID string `json:"memberId" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
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
	if err := a.Groups.KickMember(ctx, body.GroupID, userID, body.MemberID); err != nil {
		a.respondStoreError(w, err, "Could not kick member")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Member kicked"})
}

func (a *API) createGroupPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		GroupID string `json:"groupId" validate:"required"`
		Text    string `json:"text" validate:"required"`
		Files   []File `json:"files"`
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
	post, err := a.Groups.CreateGroupPost(ctx, body.GroupID, userID, Post{
		UserID:    userID,
		Text:      body.Text,
		Files:     body.Files,
		CreatedAt: time.Now(),
	})
	if err != nil {
		a.respondStoreError(w, err, "Could not create group post")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Group post created", Post: post})
}

func (a *API) deleteGroupPost(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	groupID, postID := q.Get("groupId"), q.Get("postId")
	if groupID == "" || postID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing groupId or postId"), "Missing groupId or postId")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Groups.DeleteGroupPost(ctx, groupID, userID, postID); err != nil {
		a.respondStoreError(w, err, "Could not delete group post")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Group post deleted"})
}

func (a *API) likeGroupPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		GroupID string `json:"groupId" validate:"required"`
		PostID  string `json:"postId" validate:"required"`
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
	likes, err := a.Groups.ToggleGroupPostLike(ctx, body.GroupID, body.PostID, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not toggle like")
		return
	}

	a.respond(w, http.StatusOK, response{
		Message:     "Like toggled",
		LikesNumber: len(likes),
		IsLiked:     slices.Contains(likes, userID),
	})
}

func (a *API) addGroupPostComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		GroupID string `json:"groupId" validate:"required"`
		PostID  string `json:"postId" validate:"required"`
		Text    string `json:"text" validate:"required"`
		Files   []File `json:"files"`
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
	comment, err := a.Groups.AddGroupPostComment(ctx, body.GroupID, body.PostID, Comment{
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

func (a *API) deleteGroupPostComment(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	groupID, postID, commentID := q.Get("groupId"), q.Get("postId"), q.Get("commentId")
	if groupID == "" || postID == "" || commentID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing groupId, postId or commentId"), "Missing groupId, postId or commentId")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Groups.DeleteGroupPostComment(ctx, groupID, userID, postID, commentID); err != nil {
		a.respondStoreError(w, err, "Could not delete comment")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Comment deleted"})
}
