package api

import (
	"errors"
	"net/http"
	"time"
)

const tokenCookie = "token"

func (a *API) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.TokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
		Name     string `json:"name" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	hash, err := a.Hasher.Hash(body.Password)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not register user")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.CreateUser(ctx, User{
		Email:        body.Email,
		PasswordHash: hash,
		Name:         body.Name,
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			a.respondError(w, http.StatusBadRequest, err, "User already exists")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not register user")
		return
	}

	token, err := a.Identity.Mint(user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not issue token")
		return
	}
	a.setTokenCookie(w, token)

	a.respond(w, http.StatusOK, response{Message: "Registration successful", User: user})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	user, err := a.Users.GetUserByEmail(ctx, body.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.respondError(w, http.StatusBadRequest, err, "User does not exist")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}

	match, err := a.Hasher.Verify(body.Password, user.PasswordHash)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}
	if !match {
		a.respondError(w, http.StatusBadRequest, errors.New("password mismatch"), "Wrong password")
		return
	}

	token, err := a.Identity.Mint(user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not issue token")
		return
	}
	a.setTokenCookie(w, token)

	a.respond(w, http.StatusOK, response{Message: "Login successful", User: user})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	http.SetCookie(w, &http.Cookie{
		Name:    tokenCookie,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	a.respond(w, http.StatusOK, response{Message: "Logout successful"})
}
