package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/DanilaP/social-network-backend/api/validator"
	"github.com/DanilaP/social-network-backend/realtime"
)

// A UserStore persists accounts and their relation sets. The four
// friend-relation operations mutate two user records as one atomic unit.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]Profile, error)
	ListProfiles(ctx context.Context, ids []string) ([]Profile, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error

	SendFriendRequest(ctx context.Context, fromID, toID string) error
	DeleteFriendRequest(ctx context.Context, fromID, toID string) error
	AcceptFriendRequest(ctx context.Context, userID, requesterID string) error
	DeleteFriend(ctx context.Context, userID, friendID string) error
}

// A DialogStore persists dialogs and their ordered message lists. Edit and
// delete match by message ID and are restricted to the original sender;
// both return the full updated message list for the push frame.
type DialogStore interface {
	CreateDialog(ctx context.Context, members []string, first Message) (Dialog, error)
	AppendMessage(ctx context.Context, dialogID string, msg Message) (Message, error)
	EditMessage(ctx context.Context, dialogID, messageID, senderID, text string) (Dialog, error)
	DeleteMessage(ctx context.Context, dialogID, messageID, senderID string) (Dialog, error)
	GetDialog(ctx context.Context, dialogID string) (Dialog, error)
	ListMessages(ctx context.Context, dialogID string, excludeIDs ...string) ([]Message, error)
	ListDialogs(ctx context.Context, userID string) ([]Dialog, error)
	DeleteDialog(ctx context.Context, dialogID, memberID string) error
}

// A PostStore persists feed posts, their like sets and comments. Toggles
// return the post-update like set so callers derive added/removed from the
// state the store actually produced.
type PostStore interface {
	CreatePost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, postID, authorID string) error
	ListUserPosts(ctx context.Context, userID string) ([]Post, error)
	ToggleLike(ctx context.Context, postID, userID string) ([]string, error)
	AddComment(ctx context.Context, comment Comment) (Comment, error)
	DeleteComment(ctx context.Context, postID, commentID, authorID string) error
	ToggleCommentLike(ctx context.Context, postID, commentID, userID string) ([]string, error)
}

// A GroupStore persists groups, their member/join-request sets and group
// posts.
type GroupStore interface {
	CreateGroup(ctx context.Context, group Group) (Group, error)
	DeleteGroup(ctx context.Context, groupID, adminID string) error
	ListGroups(ctx context.Context) ([]Group, error)
	ToggleJoinRequest(ctx context.Context, groupID, userID string) (bool, error)
	AcceptJoinRequest(ctx context.Context, groupID, adminID, requesterID string) error
	LeaveGroup(ctx context.Context, groupID, userID string) error
	KickMember(ctx context.Context, groupID, adminID, memberID string) error
	CreateGroupPost(ctx context.Context, groupID, adminID string, post Post) (Post, error)
	DeleteGroupPost(ctx context.Context, groupID, adminID, postID string) error
	ToggleGroupPostLike(ctx context.Context, groupID, postID, userID string) ([]string, error)
	AddGroupPostComment(ctx context.Context, groupID, postID string, comment Comment) (Comment, error)
	DeleteGroupPostComment(ctx context.Context, groupID, adminID, postID, commentID string) error
}

// A Cache provides a storage layer that caches recent dialog messages.
type Cache interface {
	ListMessages(ctx context.Context, dialogID string) ([]Message, error)
	InsertMessage(ctx context.Context, dialogID string, msg Message) error
	DropDialog(ctx context.Context, dialogID string) error
}

// An Identity mints bearer credentials and resolves them back to the
// owning user ID.
type Identity interface {
	Mint(userID string) (string, error)
	Resolve(token string) (string, error)
}

// A PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// A Broadcaster pushes a payload to the live channels of the given
// recipients. Delivery is best effort and never fails the caller.
type Broadcaster interface {
	Broadcast(recipientIDs []string, payload any)
}

// API provides the REST endpoints and the websocket push endpoint.
type API struct {
	Logger   *slog.Logger
	Users    UserStore
	Dialogs  DialogStore
	Posts    PostStore
	Groups   GroupStore
	Cache    Cache
	Identity Identity
	Hasher   PasswordHasher
	Push     Broadcaster
	Registry *realtime.Registry
	Val      *validator.Validator

	// TokenTTL bounds the token cookie lifetime.
	TokenTTL time.Duration

	once sync.Once
	mux  *http.ServeMux
}

// storeTimeout bounds every storage operation issued by a handler.
const storeTimeout = 5 * time.Second

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/registration", a.register)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/logout", a.logout)

	mux.HandleFunc("GET /user", a.getUser)
	mux.HandleFunc("PUT /user", a.updateUser)
	mux.HandleFunc("DELETE /user", a.deleteUser)
	mux.HandleFunc("GET /users", a.listUsers)

	mux.HandleFunc("GET /posts", a.listPosts)
	mux.HandleFunc("POST /posts", a.createPost)
	mux.HandleFunc("DELETE /posts", a.deletePost)
	mux.HandleFunc("POST /posts/like", a.likePost)
	mux.HandleFunc("POST /posts/comment", a.addComment)
	mux.HandleFunc("DELETE /posts/comment", a.deleteComment)
	mux.HandleFunc("POST /posts/comment/like", a.likeComment)

	mux.HandleFunc("POST /chats/message", a.sendMessage)
	mux.HandleFunc("PUT /chats/message", a.editMessage)
	mux.HandleFunc("DELETE /chats/message", a.deleteMessage)
	mux.HandleFunc("GET /chats/messages", a.listDialogMessages)

	mux.HandleFunc("GET /dialogs", a.listDialogs)
	mux.HandleFunc("DELETE /dialogs", a.deleteDialog)

	mux.HandleFunc("GET /friends", a.listFriends)
	mux.HandleFunc("GET /friends/requests", a.listFriendRequests)
	mux.HandleFunc("POST /friends/send-friend-request", a.sendFriendRequest)
	mux.HandleFunc("POST /friends/delete-friend-request", a.deleteFriendRequest)
	mux.HandleFunc("POST /friends/accept-friend-request", a.acceptFriendRequest)
	mux.HandleFunc("DELETE /friends", a.deleteFriend)

	mux.HandleFunc("GET /groups", a.listGroups)
	mux.HandleFunc("POST /groups", a.createGroup)
	mux.HandleFunc("DELETE /groups", a.deleteGroup)
	mux.HandleFunc("POST /groups/join", a.joinGroup)
	mux.HandleFunc("POST /groups/accept-join-request", a.acceptJoinRequest)
	mux.HandleFunc("POST /groups/leave", a.leaveGroup)
	mux.HandleFunc("POST /groups/kick", a.kickMember)
	mux.HandleFunc("POST /groups/post", a.createGroupPost)
	mux.HandleFunc("DELETE /groups/post", a.deleteGroupPost)
	mux.HandleFunc("POST /groups/like-post", a.likeGroupPost)
	mux.HandleFunc("POST /groups/post/comment", a.addGroupPostComment)
	mux.HandleFunc("DELETE /groups/post/comment", a.deleteGroupPostComment)

	mux.HandleFunc("GET /ws", a.serveWS)

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondStoreError maps the storage error taxonomy to HTTP statuses.
func (a *API) respondStoreError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, msg)
	case errors.Is(err, ErrNoChange):
		a.respondError(w, http.StatusConflict, err, msg)
	case errors.Is(err, ErrForbidden):
		a.respondError(w, http.StatusForbidden, err, msg)
	case errors.Is(err, ErrExists):
		a.respondError(w, http.StatusBadRequest, err, msg)
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, s any) bool {
	if err := json.NewDecoder(r.Body).Decode(s); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}
	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return false
	}
	return a.validateBody(w, s)
}

// identify resolves the token cookie to the acting user ID, writing a 401
// if the request carries no valid credential.
func (a *API) identify(w http.ResponseWriter, r *http.Request) (string, bool) {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil {
		a.respondError(w, http.StatusUnauthorized, err, "Not authenticated")
		return "", false
	}
	userID, err := a.Identity.Resolve(cookie.Value)
	if err != nil {
		a.respondError(w, http.StatusUnauthorized, err, "Not authenticated")
		return "", false
	}
	return userID, true
}

// storeCtx derives a bounded context for storage operations.
func (a *API) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}
