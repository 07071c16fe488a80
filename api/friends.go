package api

import "net/http"

// relationRequest is the shared body of the friend-relation endpoints: the
// other party's user ID.
type relationRequest struct {
	ID string `json:"id" validate:"required"`
}

func (a *API) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body relationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Users.SendFriendRequest(ctx, userID, body.ID); err != nil {
		a.respondStoreError(w, err, "Could not send friend request")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Friend request sent"})
}

func (a *API) deleteFriendRequest(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body relationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Users.DeleteFriendRequest(ctx, userID, body.ID); err != nil {
		a.respondStoreError(w, err, "Could not delete friend request")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Friend request deleted"})
}

func (a *API) acceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body relationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Users.AcceptFriendRequest(ctx, userID, body.ID); err != nil {
		a.respondStoreError(w, err, "Could not accept friend request")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Friend added"})
}

func (a *API) deleteFriend(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body relationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Users.DeleteFriend(ctx, userID, body.ID); err != nil {
		a.respondStoreError(w, err, "Could not delete friend")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "Friend deleted"})
}

func (a *API) listFriends(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string    `json:"message"`
		Friends []Profile `json:"friends"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.GetUser(ctx, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not list friends")
		return
	}
	friends, err := a.Users.ListProfiles(ctx, user.Friends)
	if err != nil {
		a.respondStoreError(w, err, "Could not list friends")
		return
	}
	if friends == nil {
		friends = []Profile{}
	}

	a.respond(w, http.StatusOK, response{Message: "Friend list", Friends: friends})
}

func (a *API) listFriendRequests(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message        string    `json:"message"`
		FriendRequests []Profile `json:"friendRequests"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.GetUser(ctx, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not list friend requests")
		return
	}
	requests, err := a.Users.ListProfiles(ctx, user.FriendRequests)
	if err != nil {
		a.respondStoreError(w, err, "Could not list friend requests")
		return
	}
	if requests == nil {
		requests = []Profile{}
	}

	a.respond(w, http.StatusOK, response{Message: "Friend request list", FriendRequests: requests})
}
