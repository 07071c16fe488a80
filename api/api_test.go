package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/DanilaP/social-network-backend/api/validator"
	"github.com/DanilaP/social-network-backend/realtime"
)

func TestAPI_register(t *testing.T) {
	tests := []struct {
		name       string
		users      *testusers
		req        string
		wantStatus int
		wantBody   string
		wantCookie bool
	}{
		{
			name:       "InvalidJSON",
			users:      &testusers{},
			req:        `not json`,
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name: "Exists",
			req: `{
				"email": "bob@example.com",
				"password": "secret1",
				"name": "Bob"
			}`,
			users: &testusers{
				createUser: func(t *testing.T, user User) (User, error) {
					return User{}, ErrExists
				},
			},
			wantStatus: 400,
			wantBody: `{
				"error": "User already exists"
			}`,
		},
		{
			name: "OK",
			req: `{
				"email": "bob@example.com",
				"password": "secret1",
				"name": "Bob"
			}`,
			users: &testusers{
				createUser: func(t *testing.T, user User) (User, error) {
					if user.Email != "bob@example.com" {
						t.Errorf("Got Email %q, want bob@example.com", user.Email)
					}
					if user.PasswordHash != "h:secret1" {
						t.Errorf("Got PasswordHash %q, want h:secret1", user.PasswordHash)
					}
					return User{
						ID:                   "u1",
						Email:                user.Email,
						Name:                 user.Name,
						Role:                 "user",
						Friends:              []string{},
						FriendRequests:       []string{},
						SendedFriendRequests: []string{},
						SendedGroupRequests:  []string{},
						Dialogs:              []string{},
					}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Registration successful",
				"user": {
					"id": "u1",
					"email": "bob@example.com",
					"name": "Bob",
					"avatar": "",
					"status": "",
					"role": "user",
					"friends": [],
					"friendRequests": [],
					"sendedFriendRequests": [],
					"sendedApplicationsToGroups": [],
					"dialogs": []
				}
			}`,
			wantCookie: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.users.T = t
			api := newTestAPI(t)
			api.Users = tt.users

			srv := httptest.NewServer(api)
			defer srv.Close()

			req, _ := http.NewRequest("POST", srv.URL+"/auth/registration", strings.NewReader(tt.req))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
			if got := hasCookie(resp, tokenCookie); got != tt.wantCookie {
				t.Errorf("Got token cookie %t, want %t", got, tt.wantCookie)
			}
		})
	}
}

func TestAPI_login(t *testing.T) {
	bob := User{
		ID:           "u1",
		Email:        "bob@example.com",
		PasswordHash: "h:secret1",
		Name:         "Bob",
		Role:         "user",
	}
	tests := []struct {
		name       string
		users      *testusers
		req        string
		wantStatus int
		wantBody   string
		wantCookie bool
	}{
		{
			name: "UnknownUser",
			req: `{
				"email": "bob@example.com",
				"password": "secret1"
			}`,
			users: &testusers{
				getUserByEmail: func(t *testing.T, email string) (User, error) {
					return User{}, ErrNotFound
				},
			},
			wantStatus: 400,
			wantBody: `{
				"error": "User does not exist"
			}`,
		},
		{
			name: "WrongPassword",
			req: `{
				"email": "bob@example.com",
				"password": "nope123"
			}`,
			users: &testusers{
				getUserByEmail: func(t *testing.T, email string) (User, error) {
					return bob, nil
				},
			},
			wantStatus: 400,
			wantBody: `{
				"error": "Wrong password"
			}`,
		},
		{
			name: "OK",
			req: `{
				"email": "bob@example.com",
				"password": "secret1"
			}`,
			users: &testusers{
				getUserByEmail: func(t *testing.T, email string) (User, error) {
					if email != "bob@example.com" {
						t.Errorf("Got email %q, want bob@example.com", email)
					}
					return bob, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Login successful",
				"user": {
					"id": "u1",
					"email": "bob@example.com",
					"name": "Bob",
					"avatar": "",
					"status": "",
					"role": "user",
					"friends": null,
					"friendRequests": null,
					"sendedFriendRequests": null,
					"sendedApplicationsToGroups": null,
					"dialogs": null
				}
			}`,
			wantCookie: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.users.T = t
			api := newTestAPI(t)
			api.Users = tt.users

			srv := httptest.NewServer(api)
			defer srv.Close()

			req, _ := http.NewRequest("POST", srv.URL+"/auth/login", strings.NewReader(tt.req))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
			if got := hasCookie(resp, tokenCookie); got != tt.wantCookie {
				t.Errorf("Got token cookie %t, want %t", got, tt.wantCookie)
			}
		})
	}
}

func TestAPI_sendMessage(t *testing.T) {
	sent := Message{
		ID:        "m1",
		DialogID:  "d1",
		SenderID:  "u1",
		Text:      "hi there",
		Files:     []File{},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	wantMessage := `{
		"id": "m1",
		"dialog_id": "d1",
		"sender_id": "u1",
		"text": "hi there",
		"files": [],
		"created_at": "2024-01-01T00:00:00Z"
	}`

	t.Run("Unauthenticated", func(t *testing.T) {
		api := newTestAPI(t)

		srv := httptest.NewServer(api)
		defer srv.Close()

		req, _ := http.NewRequest("POST", srv.URL+"/chats/message", strings.NewReader(`{}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		checkStatus(t, resp.StatusCode, 401)
		checkBody(t, resp, `{"error": "Not authenticated"}`)
	})

	t.Run("NewDialog", func(t *testing.T) {
		dialogs := &testdialogs{
			T: t,
			createDialog: func(t *testing.T, members []string, first Message) (Dialog, error) {
				if want := []string{"u1", "u2"}; !equalStrings(members, want) {
					t.Errorf("Got members %v, want %v", members, want)
				}
				if first.Text != "hi there" {
					t.Errorf("Got Text %q, want hi there", first.Text)
				}
				return Dialog{ID: "d1", Members: members, Messages: []Message{sent}}, nil
			},
		}
		opponent := &capturechannel{}

		api := newTestAPI(t)
		api.Dialogs = dialogs
		api.Registry.Register("u2", opponent)

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "POST", "/chats/message", "u1", `{
			"opponent_id": "u2",
			"text": "hi there"
		}`)
		checkStatus(t, resp.StatusCode, 200)
		checkBody(t, resp, `{
			"message": "Message sent",
			"dialog_id": "d1",
			"messageInfo": `+wantMessage+`
		}`)
		checkFrame(t, opponent, `{
			"type": "new_message",
			"dialog_id": "d1",
			"message": `+wantMessage+`
		}`)
	})

	t.Run("ExistingDialog", func(t *testing.T) {
		dialogs := &testdialogs{
			T: t,
			appendMessage: func(t *testing.T, dialogID string, msg Message) (Message, error) {
				if dialogID != "d1" {
					t.Errorf("Got dialog ID %q, want d1", dialogID)
				}
				return sent, nil
			},
		}
		opponent := &capturechannel{}

		api := newTestAPI(t)
		api.Dialogs = dialogs
		api.Registry.Register("u2", opponent)

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "POST", "/chats/message", "u1", `{
			"dialog_id": "d1",
			"opponent_id": "u2",
			"text": "hi there"
		}`)
		checkStatus(t, resp.StatusCode, 200)
		checkFrame(t, opponent, `{
			"type": "new_message",
			"dialog_id": "d1",
			"message": `+wantMessage+`
		}`)
	})

	t.Run("NotAMember", func(t *testing.T) {
		dialogs := &testdialogs{
			T: t,
			appendMessage: func(t *testing.T, dialogID string, msg Message) (Message, error) {
				return Message{}, ErrForbidden
			},
		}

		api := newTestAPI(t)
		api.Dialogs = dialogs

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "POST", "/chats/message", "u3", `{
			"dialog_id": "d1",
			"opponent_id": "u2",
			"text": "hi there"
		}`)
		checkStatus(t, resp.StatusCode, 403)
		checkBody(t, resp, `{"error": "Could not send message"}`)
	})

	t.Run("BrokenChannelDropped", func(t *testing.T) {
		dialogs := &testdialogs{
			T: t,
			appendMessage: func(t *testing.T, dialogID string, msg Message) (Message, error) {
				return sent, nil
			},
		}
		broken := &capturechannel{fail: true}

		api := newTestAPI(t)
		api.Dialogs = dialogs
		api.Registry.Register("u2", broken)

		srv := httptest.NewServer(api)
		defer srv.Close()

		// The send still succeeds; the dead channel is closed and
		// removed from the registry.
		resp := do(t, srv, "POST", "/chats/message", "u1", `{
			"dialog_id": "d1",
			"opponent_id": "u2",
			"text": "hi there"
		}`)
		checkStatus(t, resp.StatusCode, 200)
		if !broken.isClosed() {
			t.Error("Broken channel was not closed")
		}
		if n := len(api.Registry.ChannelsFor("u2")); n != 0 {
			t.Errorf("Got %d registered channels, want 0", n)
		}
	})

	t.Run("CacheError", func(t *testing.T) {
		buf := &bytes.Buffer{}
		dialogs := &testdialogs{
			T: t,
			appendMessage: func(t *testing.T, dialogID string, msg Message) (Message, error) {
				return sent, nil
			},
		}

		api := newTestAPI(t)
		api.Logger = slog.New(slog.NewTextHandler(buf, nil))
		api.Dialogs = dialogs
		api.Cache = &testcache{T: t, insertMessage: func(t *testing.T, dialogID string, msg Message) error {
			return errors.New("something went wrong")
		}}

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "POST", "/chats/message", "u1", `{
			"dialog_id": "d1",
			"opponent_id": "u2",
			"text": "hi there"
		}`)
		checkStatus(t, resp.StatusCode, 200)
		checkLog(t, buf, "Could not cache message")
	})
}

func TestAPI_editMessage(t *testing.T) {
	edited := Message{
		ID:        "m1",
		DialogID:  "d1",
		SenderID:  "u1",
		Text:      "hi again",
		Files:     []File{},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	tests := []struct {
		name       string
		dialogs    *testdialogs
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotFound",
			dialogs: &testdialogs{
				editMessage: func(t *testing.T, dialogID, messageID, senderID, text string) (Dialog, error) {
					return Dialog{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Could not edit message"
			}`,
		},
		{
			name: "NotTheSender",
			dialogs: &testdialogs{
				editMessage: func(t *testing.T, dialogID, messageID, senderID, text string) (Dialog, error) {
					return Dialog{}, ErrForbidden
				},
			},
			wantStatus: 403,
			wantBody: `{
				"error": "Could not edit message"
			}`,
		},
		{
			name: "OK",
			dialogs: &testdialogs{
				editMessage: func(t *testing.T, dialogID, messageID, senderID, text string) (Dialog, error) {
					if senderID != "u1" {
						t.Errorf("Got sender ID %q, want u1", senderID)
					}
					if text != "hi again" {
						t.Errorf("Got text %q, want hi again", text)
					}
					return Dialog{ID: "d1", Members: []string{"u1", "u2"}, Messages: []Message{edited}}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Message edited",
				"messages": [
					{
						"id": "m1",
						"dialog_id": "d1",
						"sender_id": "u1",
						"text": "hi again",
						"files": [],
						"created_at": "2024-01-01T00:00:00Z"
					}
				]
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.dialogs.T = t
			member := &capturechannel{}

			api := newTestAPI(t)
			api.Dialogs = tt.dialogs
			api.Registry.Register("u2", member)

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "PUT", "/chats/message", "u1", `{
				"dialog_id": "d1",
				"message_id": "m1",
				"text": "hi again"
			}`)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)

			// Only the successful edit reaches the other member.
			if tt.wantStatus == 200 {
				checkFrame(t, member, `{
					"type": "edit_message",
					"dialog_id": "d1",
					"messages": [
						{
							"id": "m1",
							"dialog_id": "d1",
							"sender_id": "u1",
							"text": "hi again",
							"files": [],
							"created_at": "2024-01-01T00:00:00Z"
						}
					]
				}`)
			} else if n := member.count(); n != 0 {
				t.Errorf("Got %d frames, want 0", n)
			}
		})
	}
}

func TestAPI_deleteMessage(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		dialogs    *testdialogs
		wantStatus int
		wantBody   string
	}{
		{
			name:       "MissingParams",
			target:     "/chats/message?dialog_id=d1",
			dialogs:    &testdialogs{},
			wantStatus: 400,
			wantBody: `{
				"error": "Missing dialog_id or message_id"
			}`,
		},
		{
			name:   "NotFound",
			target: "/chats/message?dialog_id=d1&message_id=m9",
			dialogs: &testdialogs{
				deleteMessage: func(t *testing.T, dialogID, messageID, senderID string) (Dialog, error) {
					return Dialog{}, ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Could not delete message"
			}`,
		},
		{
			name:   "OK",
			target: "/chats/message?dialog_id=d1&message_id=m1",
			dialogs: &testdialogs{
				deleteMessage: func(t *testing.T, dialogID, messageID, senderID string) (Dialog, error) {
					if messageID != "m1" {
						t.Errorf("Got message ID %q, want m1", messageID)
					}
					return Dialog{ID: "d1", Members: []string{"u1", "u2"}, Messages: []Message{}}, nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Message deleted",
				"messages": []
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.dialogs.T = t
			api := newTestAPI(t)
			api.Dialogs = tt.dialogs

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "DELETE", tt.target, "u1", "")
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_listDialogMessages(t *testing.T) {
	older := Message{
		ID:        "m1",
		DialogID:  "d1",
		SenderID:  "u1",
		Text:      "Hello",
		Files:     []File{},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := Message{
		ID:        "m2",
		DialogID:  "d1",
		SenderID:  "u2",
		Text:      "World",
		Files:     []File{},
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	t.Run("NotAMember", func(t *testing.T) {
		api := newTestAPI(t)
		api.Dialogs = &testdialogs{
			T: t,
			getDialog: func(t *testing.T, dialogID string) (Dialog, error) {
				return Dialog{ID: "d1", Members: []string{"u1", "u2"}}, nil
			},
		}

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "GET", "/chats/messages?dialog_id=d1", "u3", "")
		checkStatus(t, resp.StatusCode, 403)
		checkBody(t, resp, `{"error": "Not a dialog member"}`)
	})

	t.Run("Mixed", func(t *testing.T) {
		api := newTestAPI(t)
		api.Dialogs = &testdialogs{
			T: t,
			getDialog: func(t *testing.T, dialogID string) (Dialog, error) {
				return Dialog{ID: "d1", Members: []string{"u1", "u2"}}, nil
			},
			listMessages: func(t *testing.T, dialogID string, excludeIDs ...string) ([]Message, error) {
				if want := []string{"m2"}; !equalStrings(excludeIDs, want) {
					t.Errorf("Got exclude IDs %v, want %v", excludeIDs, want)
				}
				return []Message{older}, nil
			},
		}
		api.Cache = &testcache{
			T: t,
			listMessages: func(t *testing.T, dialogID string) ([]Message, error) {
				return []Message{newer}, nil
			},
		}

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "GET", "/chats/messages?dialog_id=d1", "u1", "")
		checkStatus(t, resp.StatusCode, 200)
		checkBody(t, resp, `{
			"message": "Dialog messages",
			"messages": [
				{
					"id": "m1",
					"dialog_id": "d1",
					"sender_id": "u1",
					"text": "Hello",
					"files": [],
					"created_at": "2024-01-01T00:00:00Z"
				},
				{
					"id": "m2",
					"dialog_id": "d1",
					"sender_id": "u2",
					"text": "World",
					"files": [],
					"created_at": "2024-01-02T00:00:00Z"
				}
			]
		}`)
	})

	t.Run("Empty", func(t *testing.T) {
		api := newTestAPI(t)
		api.Dialogs = &testdialogs{
			T: t,
			getDialog: func(t *testing.T, dialogID string) (Dialog, error) {
				return Dialog{ID: "d1", Members: []string{"u1", "u2"}}, nil
			},
			listMessages: func(t *testing.T, dialogID string, excludeIDs ...string) ([]Message, error) {
				return nil, nil
			},
		}

		srv := httptest.NewServer(api)
		defer srv.Close()

		resp := do(t, srv, "GET", "/chats/messages?dialog_id=d1", "u1", "")
		checkStatus(t, resp.StatusCode, 200)
		checkBody(t, resp, `{
			"message": "Dialog messages",
			"messages": []
		}`)
	})
}

func TestAPI_likePost(t *testing.T) {
	// A stateful stub: the same request toggles the like on and back off.
	likes := []string{}
	posts := &testposts{
		toggleLike: func(t *testing.T, postID, userID string) ([]string, error) {
			if postID != "p1" {
				t.Errorf("Got post ID %q, want p1", postID)
			}
			if len(likes) == 0 {
				likes = []string{userID}
			} else {
				likes = []string{}
			}
			return likes, nil
		},
	}
	posts.T = t

	api := newTestAPI(t)
	api.Posts = posts

	srv := httptest.NewServer(api)
	defer srv.Close()

	first := do(t, srv, "POST", "/posts/like", "u1", `{"id": "p1"}`)
	checkStatus(t, first.StatusCode, 200)
	checkBody(t, first, `{
		"message": "Like toggled",
		"likesNumber": 1,
		"isLiked": true
	}`)

	second := do(t, srv, "POST", "/posts/like", "u1", `{"id": "p1"}`)
	checkStatus(t, second.StatusCode, 200)
	checkBody(t, second, `{
		"message": "Like toggled",
		"likesNumber": 0,
		"isLiked": false
	}`)
}

func TestAPI_listPosts(t *testing.T) {
	api := newTestAPI(t)
	api.Posts = &testposts{
		T: t,
		listUserPosts: func(t *testing.T, userID string) ([]Post, error) {
			if userID != "u2" {
				t.Errorf("Got user ID %q, want u2", userID)
			}
			return []Post{
				{
					ID:        "p1",
					UserID:    "u2",
					Text:      "First",
					Files:     []File{},
					Likes:     []string{"u1", "u3"},
					Comments:  []Comment{},
					CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}

	srv := httptest.NewServer(api)
	defer srv.Close()

	// The viewer liked the post, so the listing flags it.
	resp := do(t, srv, "GET", "/posts?id=u2", "u1", "")
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{
		"message": "Post list",
		"posts": [
			{
				"id": "p1",
				"user_id": "u2",
				"text": "First",
				"files": [],
				"likes": ["u1", "u3"],
				"comments": [],
				"created_at": "2024-01-01T00:00:00Z",
				"isLiked": true
			}
		]
	}`)
}

func TestAPI_sendFriendRequest(t *testing.T) {
	tests := []struct {
		name       string
		users      *testusers
		wantStatus int
		wantBody   string
	}{
		{
			name: "AlreadySent",
			users: &testusers{
				sendFriendRequest: func(t *testing.T, fromID, toID string) error {
					return ErrNoChange
				},
			},
			wantStatus: 409,
			wantBody: `{
				"error": "Could not send friend request"
			}`,
		},
		{
			name: "UnknownUser",
			users: &testusers{
				sendFriendRequest: func(t *testing.T, fromID, toID string) error {
					return ErrNotFound
				},
			},
			wantStatus: 404,
			wantBody: `{
				"error": "Could not send friend request"
			}`,
		},
		{
			name: "OK",
			users: &testusers{
				sendFriendRequest: func(t *testing.T, fromID, toID string) error {
					if fromID != "u1" || toID != "u2" {
						t.Errorf("Got %q -> %q, want u1 -> u2", fromID, toID)
					}
					return nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Friend request sent"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.users.T = t
			api := newTestAPI(t)
			api.Users = tt.users

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "POST", "/friends/send-friend-request", "u1", `{"id": "u2"}`)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

func TestAPI_listFriends(t *testing.T) {
	api := newTestAPI(t)
	api.Users = &testusers{
		T: t,
		getUser: func(t *testing.T, id string) (User, error) {
			return User{ID: "u1", Friends: []string{"u2"}}, nil
		},
		listProfiles: func(t *testing.T, ids []string) ([]Profile, error) {
			if want := []string{"u2"}; !equalStrings(ids, want) {
				t.Errorf("Got IDs %v, want %v", ids, want)
			}
			return []Profile{{ID: "u2", Name: "Alice"}}, nil
		},
	}

	srv := httptest.NewServer(api)
	defer srv.Close()

	resp := do(t, srv, "GET", "/friends", "u1", "")
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{
		"message": "Friend list",
		"friends": [
			{"id": "u2", "name": "Alice", "avatar": ""}
		]
	}`)
}

func TestAPI_joinGroup(t *testing.T) {
	// The same request flips the pending join request on and back off.
	requested := false
	groups := &testgroups{
		toggleJoinRequest: func(t *testing.T, groupID, userID string) (bool, error) {
			if groupID != "g1" {
				t.Errorf("Got group ID %q, want g1", groupID)
			}
			requested = !requested
			return requested, nil
		},
	}
	groups.T = t

	api := newTestAPI(t)
	api.Groups = groups

	srv := httptest.NewServer(api)
	defer srv.Close()

	first := do(t, srv, "POST", "/groups/join", "u1", `{"id": "g1"}`)
	checkStatus(t, first.StatusCode, 200)
	checkBody(t, first, `{
		"message": "Join request sent",
		"requested": true
	}`)

	second := do(t, srv, "POST", "/groups/join", "u1", `{"id": "g1"}`)
	checkStatus(t, second.StatusCode, 200)
	checkBody(t, second, `{
		"message": "Join request withdrawn",
		"requested": false
	}`)
}

func TestAPI_acceptJoinRequest(t *testing.T) {
	tests := []struct {
		name       string
		groups     *testgroups
		wantStatus int
		wantBody   string
	}{
		{
			name: "NotTheAdmin",
			groups: &testgroups{
				acceptJoinRequest: func(t *testing.T, groupID, adminID, requesterID string) error {
					return ErrForbidden
				},
			},
			wantStatus: 403,
			wantBody: `{
				"error": "Could not accept join request"
			}`,
		},
		{
			name: "NotPending",
			groups: &testgroups{
				acceptJoinRequest: func(t *testing.T, groupID, adminID, requesterID string) error {
					return ErrNoChange
				},
			},
			wantStatus: 409,
			wantBody: `{
				"error": "Could not accept join request"
			}`,
		},
		{
			name: "OK",
			groups: &testgroups{
				acceptJoinRequest: func(t *testing.T, groupID, adminID, requesterID string) error {
					if adminID != "u1" || requesterID != "u2" {
						t.Errorf("Got admin %q requester %q, want u1 u2", adminID, requesterID)
					}
					return nil
				},
			},
			wantStatus: 200,
			wantBody: `{
				"message": "Join request accepted"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.groups.T = t
			api := newTestAPI(t)
			api.Groups = tt.groups

			srv := httptest.NewServer(api)
			defer srv.Close()

			resp := do(t, srv, "POST", "/groups/accept-join-request", "u1", `{
				"id": "g1",
				"requestId": "u2"
			}`)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}
}

// newTestAPI builds an API with stub identity and hashing, a real push
// registry, and a no-op cache. Tests override the stores they exercise.
func newTestAPI(t *testing.T) *API {
	registry := realtime.NewRegistry()
	return &API{
		Logger:   slogt.New(t),
		Cache:    &testcache{T: t},
		Identity: testidentity{},
		Hasher:   testhasher{},
		Push:     &realtime.Dispatcher{Logger: slogt.New(t), Registry: registry},
		Registry: registry,
		Val:      validator.New(),
		TokenTTL: time.Hour,
	}
}

// do issues a request authenticated as userID. The stub identity resolves
// the cookie value to the user ID directly.
func do(t *testing.T, srv *httptest.Server, method, target, userID, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+target, r)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: userID})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

type testidentity struct{}

func (testidentity) Mint(userID string) (string, error) { return userID, nil }

func (testidentity) Resolve(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

type testhasher struct{}

func (testhasher) Hash(password string) (string, error) { return "h:" + password, nil }

func (testhasher) Verify(password, hash string) (bool, error) {
	return hash == "h:"+password, nil
}

type testusers struct {
	T                   *testing.T
	createUser          func(t *testing.T, user User) (User, error)
	getUser             func(t *testing.T, id string) (User, error)
	getUserByEmail      func(t *testing.T, email string) (User, error)
	listUsers           func(t *testing.T) ([]Profile, error)
	listProfiles        func(t *testing.T, ids []string) ([]Profile, error)
	updateProfile       func(t *testing.T, id string, upd ProfileUpdate) (User, error)
	deleteUser          func(t *testing.T, id string) error
	sendFriendRequest   func(t *testing.T, fromID, toID string) error
	deleteFriendRequest func(t *testing.T, fromID, toID string) error
	acceptFriendRequest func(t *testing.T, userID, requesterID string) error
	deleteFriend        func(t *testing.T, userID, friendID string) error
}

func (u *testusers) CreateUser(_ context.Context, user User) (User, error) {
	return u.createUser(u.T, user)
}

func (u *testusers) GetUser(_ context.Context, id string) (User, error) {
	return u.getUser(u.T, id)
}

func (u *testusers) GetUserByEmail(_ context.Context, email string) (User, error) {
	return u.getUserByEmail(u.T, email)
}

func (u *testusers) ListUsers(_ context.Context) ([]Profile, error) {
	return u.listUsers(u.T)
}

func (u *testusers) ListProfiles(_ context.Context, ids []string) ([]Profile, error) {
	return u.listProfiles(u.T, ids)
}

func (u *testusers) UpdateProfile(_ context.Context, id string, upd ProfileUpdate) (User, error) {
	return u.updateProfile(u.T, id, upd)
}

func (u *testusers) DeleteUser(_ context.Context, id string) error {
	return u.deleteUser(u.T, id)
}

func (u *testusers) SendFriendRequest(_ context.Context, fromID, toID string) error {
	return u.sendFriendRequest(u.T, fromID, toID)
}

func (u *testusers) DeleteFriendRequest(_ context.Context, fromID, toID string) error {
	return u.deleteFriendRequest(u.T, fromID, toID)
}

func (u *testusers) AcceptFriendRequest(_ context.Context, userID, requesterID string) error {
	return u.acceptFriendRequest(u.T, userID, requesterID)
}

func (u *testusers) DeleteFriend(_ context.Context, userID, friendID string) error {
	return u.deleteFriend(u.T, userID, friendID)
}

type testdialogs struct {
	T             *testing.T
	createDialog  func(t *testing.T, members []string, first Message) (Dialog, error)
	appendMessage func(t *testing.T, dialogID string, msg Message) (Message, error)
	editMessage   func(t *testing.T, dialogID, messageID, senderID, text string) (Dialog, error)
	deleteMessage func(t *testing.T, dialogID, messageID, senderID string) (Dialog, error)
	getDialog     func(t *testing.T, dialogID string) (Dialog, error)
	listMessages  func(t *testing.T, dialogID string, excludeIDs ...string) ([]Message, error)
	listDialogs   func(t *testing.T, userID string) ([]Dialog, error)
	deleteDialog  func(t *testing.T, dialogID, memberID string) error
}

func (d *testdialogs) CreateDialog(_ context.Context, members []string, first Message) (Dialog, error) {
	return d.createDialog(d.T, members, first)
}

func (d *testdialogs) AppendMessage(_ context.Context, dialogID string, msg Message) (Message, error) {
	return d.appendMessage(d.T, dialogID, msg)
}

func (d *testdialogs) EditMessage(_ context.Context, dialogID, messageID, senderID, text string) (Dialog, error) {
	return d.editMessage(d.T, dialogID, messageID, senderID, text)
}

func (d *testdialogs) DeleteMessage(_ context.Context, dialogID, messageID, senderID string) (Dialog, error) {
	return d.deleteMessage(d.T, dialogID, messageID, senderID)
}

func (d *testdialogs) GetDialog(_ context.Context, dialogID string) (Dialog, error) {
	return d.getDialog(d.T, dialogID)
}

func (d *testdialogs) ListMessages(_ context.Context, dialogID string, excludeIDs ...string) ([]Message, error) {
	return d.listMessages(d.T, dialogID, excludeIDs...)
}

func (d *testdialogs) ListDialogs(_ context.Context, userID string) ([]Dialog, error) {
	return d.listDialogs(d.T, userID)
}

func (d *testdialogs) DeleteDialog(_ context.Context, dialogID, memberID string) error {
	return d.deleteDialog(d.T, dialogID, memberID)
}

type testposts struct {
	T                 *testing.T
	createPost        func(t *testing.T, post Post) (Post, error)
	deletePost        func(t *testing.T, postID, authorID string) error
	listUserPosts     func(t *testing.T, userID string) ([]Post, error)
	toggleLike        func(t *testing.T, postID, userID string) ([]string, error)
	addComment        func(t *testing.T, comment Comment) (Comment, error)
	deleteComment     func(t *testing.T, postID, commentID, authorID string) error
	toggleCommentLike func(t *testing.T, postID, commentID, userID string) ([]string, error)
}

func (p *testposts) CreatePost(_ context.Context, post Post) (Post, error) {
	return p.createPost(p.T, post)
}

func (p *testposts) DeletePost(_ context.Context, postID, authorID string) error {
	return p.deletePost(p.T, postID, authorID)
}

func (p *testposts) ListUserPosts(_ context.Context, userID string) ([]Post, error) {
	return p.listUserPosts(p.T, userID)
}

func (p *testposts) ToggleLike(_ context.Context, postID, userID string) ([]string, error) {
	return p.toggleLike(p.T, postID, userID)
}

func (p *testposts) AddComment(_ context.Context, comment Comment) (Comment, error) {
	return p.addComment(p.T, comment)
}

func (p *testposts) DeleteComment(_ context.Context, postID, commentID, authorID string) error {
	return p.deleteComment(p.T, postID, commentID, authorID)
}

func (p *testposts) ToggleCommentLike(_ context.Context, postID, commentID, userID string) ([]string, error) {
	return p.toggleCommentLike(p.T, postID, commentID, userID)
}

type testgroups struct {
	T                      *testing.T
	createGroup            func(t *testing.T, group Group) (Group, error)
	deleteGroup            func(t *testing.T, groupID, adminID string) error
	listGroups             func(t *testing.T) ([]Group, error)
	toggleJoinRequest      func(t *testing.T, groupID, userID string) (bool, error)
	acceptJoinRequest      func(t *testing.T, groupID, adminID, requesterID string) error
	leaveGroup             func(t *testing.T, groupID, userID string) error
	kickMember             func(t *testing.T, groupID, adminID, memberID string) error
	createGroupPost        func(t *testing.T, groupID, adminID string, post Post) (Post, error)
	deleteGroupPost        func(t *testing.T, groupID, adminID, postID string) error
	toggleGroupPostLike    func(t *testing.T, groupID, postID, userID string) ([]string, error)
	addGroupPostComment    func(t *testing.T, groupID, postID string, comment Comment) (Comment, error)
	deleteGroupPostComment func(t *testing.T, groupID, adminID, postID, commentID string) error
}

func (g *testgroups) CreateGroup(_ context.Context, group Group) (Group, error) {
	return g.createGroup(g.T, group)
}

func (g *testgroups) DeleteGroup(_ context.Context, groupID, adminID string) error {
	return g.deleteGroup(g.T, groupID, adminID)
}

func (g *testgroups) ListGroups(_ context.Context) ([]Group, error) {
	return g.listGroups(g.T)
}

func (g *testgroups) ToggleJoinRequest(_ context.Context, groupID, userID string) (bool, error) {
	return g.toggleJoinRequest(g.T, groupID, userID)
}

func (g *testgroups) AcceptJoinRequest(_ context.Context, groupID, adminID, requesterID string) error {
	return g.acceptJoinRequest(g.T, groupID, adminID, requesterID)
}

func (g *testgroups) LeaveGroup(_ context.Context, groupID, userID string) error {
	return g.leaveGroup(g.T, groupID, userID)
}

func (g *testgroups) KickMember(_ context.Context, groupID, adminID, memberID string) error {
	return g.kickMember(g.T, groupID, adminID, memberID)
}

func (g *testgroups) CreateGroupPost(_ context.Context, groupID, adminID string, post Post) (Post, error) {
	return g.createGroupPost(g.T, groupID, adminID, post)
}

func (g *testgroups) DeleteGroupPost(_ context.Context, groupID, adminID, postID string) error {
	return g.deleteGroupPost(g.T, groupID, adminID, postID)
}

func (g *testgroups) ToggleGroupPostLike(_ context.Context, groupID, postID, userID string) ([]string, error) {
	return g.toggleGroupPostLike(g.T, groupID, postID, userID)
}

func (g *testgroups) AddGroupPostComment(_ context.Context, groupID, postID string, comment Comment) (Comment, error) {
	return g.addGroupPostComment(g.T, groupID, postID, comment)
}

func (g *testgroups) DeleteGroupPostComment(_ context.Context, groupID, adminID, postID, commentID string) error {
	return g.deleteGroupPostComment(g.T, groupID, adminID, postID, commentID)
}

type testcache struct {
	T             *testing.T
	listMessages  func(t *testing.T, dialogID string) ([]Message, error)
	insertMessage func(t *testing.T, dialogID string, msg Message) error
	dropDialog    func(t *testing.T, dialogID string) error
}

func (c *testcache) ListMessages(_ context.Context, dialogID string) ([]Message, error) {
	if c.listMessages == nil {
		return nil, nil
	}
	return c.listMessages(c.T, dialogID)
}

func (c *testcache) InsertMessage(_ context.Context, dialogID string, msg Message) error {
	if c.insertMessage == nil {
		return nil
	}
	return c.insertMessage(c.T, dialogID, msg)
}

func (c *testcache) DropDialog(_ context.Context, dialogID string) error {
	if c.dropDialog == nil {
		return nil
	}
	return c.dropDialog(c.T, dialogID)
}

// capturechannel records pushed frames in place of a live websocket. With
// fail set it rejects every send, standing in for a dead connection.
type capturechannel struct {
	fail bool

	mu     sync.Mutex
	frames []string
	closed bool
}

func (c *capturechannel) Send(data []byte) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(data))
	return nil
}

func (c *capturechannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *capturechannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *capturechannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func checkFrame(t *testing.T, ch *capturechannel, want string) {
	t.Helper()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.frames) != 1 {
		t.Fatalf("Got %d frames, want 1", len(ch.frames))
	}
	got := normalizeJSON(t, strings.NewReader(ch.frames[0]))
	wantNorm := normalizeJSON(t, strings.NewReader(want))
	if got != wantNorm {
		t.Errorf("Frame does not match\nGot\n  %s\n\nWant\n  %s", got, wantNorm)
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func checkStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("Got HTTP status %d, want %d", got, want)
	}
}

func checkBody(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	gotBody := normalizeJSON(t, resp.Body)
	wantBody := normalizeJSON(t, bytes.NewReader([]byte(want)))
	if gotBody != wantBody {
		t.Errorf("Body does not match\nGot\n  %s\n\nWant\n  %s", gotBody, wantBody)
	}
}

func checkLog(t *testing.T, buffer *bytes.Buffer, want string) {
	t.Helper()

	if s := buffer.String(); want != "" && !strings.Contains(s, want) {
		t.Errorf("Log does not contain  %s\n", want)
	}
}

func hasCookie(resp *http.Response, name string) bool {
	for _, c := range resp.Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func normalizeJSON(t *testing.T, r io.Reader) string {
	t.Helper()
	var buf bytes.Buffer
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Could not read JSON: %v", err)
	}
	if err := json.Indent(&buf, b, "  ", "  "); err != nil {
		t.Fatalf("Could not indent JSON: %v", err)
	}
	return strings.TrimSpace(buf.String())
}
