package api

import (
	"errors"
	"net/http"
)

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.GetUser(ctx, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not get user")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "User info", User: user})
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body ProfileUpdate
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.UpdateProfile(ctx, userID, body)
	if err != nil {
		a.respondStoreError(w, err, "Could not update user")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "User updated", User: user})
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	if _, ok := a.identify(w, r); !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing user id"), "Missing user id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Users.DeleteUser(ctx, id); err != nil {
		a.respondStoreError(w, err, "Could not delete user")
		return
	}

	a.respond(w, http.StatusOK, response{Message: "User deleted"})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string    `json:"message"`
		Users   []Profile `json:"users"`
	}

	if _, ok := a.identify(w, r); !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	users, err := a.Users.ListUsers(ctx)
	if err != nil {
		a.respondStoreError(w, err, "Could not list users")
		return
	}
	if users == nil {
		users = []Profile{}
	}

	a.respond(w, http.StatusOK, response{Message: "User list", Users: users})
}
