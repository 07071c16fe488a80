package postgres

import (
	"time"

	"github.com/DanilaP/social-network-backend/api"
)

// A user row carries the account fields and the relation sets as text[]
// columns, mirroring the unordered-set semantics of the domain model.
type user struct {
	ID                   string   `bun:",pk,type:uuid"`
	Email                string   `bun:",notnull,unique"`
	PasswordHash         string   `bun:"password_hash,notnull"`
	Name                 string   `bun:",notnull"`
	Avatar               string   `bun:",nullzero"`
	Status               string   `bun:",nullzero"`
	Role                 string   `bun:",nullzero"`
	Friends              []string `bun:",array"`
	FriendRequests       []string `bun:"friend_requests,array"`
	SendedFriendRequests []string `bun:"sended_friend_requests,array"`
	SendedGroupRequests  []string `bun:"sended_group_requests,array"`
	Dialogs              []string `bun:",array"`
}

type dialog struct {
	ID      string   `bun:",pk,type:uuid"`
	Members []string `bun:",array,notnull"`
}

type message struct {
	ID          string     `bun:",pk,type:uuid"`
	DialogID    string     `bun:"dialog_id,type:uuid,notnull"`
	SenderID    string     `bun:"sender_id,type:uuid,notnull"`
	MessageText string     `bun:"message_text,notnull"`
	Files       []api.File `bun:"files,type:jsonb"`
	CreatedAt   time.Time  `bun:",nullzero,default:now()"`
}

type group struct {
	ID           string   `bun:",pk,type:uuid"`
	Name         string   `bun:",notnull"`
	Status       string   `bun:",nullzero"`
	Admin        string   `bun:",type:uuid,notnull"`
	Members      []string `bun:",array"`
	JoinRequests []string `bun:"join_requests,array"`
}

// A post row backs both the user feed (group_id empty) and group walls
// (group_id set). The like set lives on the row so a toggle is a single
// atomic statement.
type post struct {
	ID        string     `bun:",pk,type:uuid"`
	UserID    string     `bun:"user_id,type:uuid,notnull"`
	GroupID   string     `bun:"group_id,type:uuid,nullzero"`
	PostText  string     `bun:"post_text,notnull"`
	Files     []api.File `bun:"files,type:jsonb"`
	Likes     []string   `bun:",array"`
	CreatedAt time.Time  `bun:",nullzero,default:now()"`
}

type comment struct {
	ID          string     `bun:",pk,type:uuid"`
	PostID      string     `bun:"post_id,type:uuid,notnull"`
	UserID      string     `bun:"user_id,type:uuid,notnull"`
	CommentText string     `bun:"comment_text,notnull"`
	Files       []api.File `bun:"files,type:jsonb"`
	Likes       []string   `bun:",array"`
	CreatedAt   time.Time  `bun:",nullzero,default:now()"`
}

func (u user) APIUser() api.User {
	return api.User{
		ID:                   u.ID,
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		Name:                 u.Name,
		Avatar:               u.Avatar,
		Status:               u.Status,
		Role:                 u.Role,
		Friends:              emptyIfNil(u.Friends),
		FriendRequests:       emptyIfNil(u.FriendRequests),
		SendedFriendRequests: emptyIfNil(u.SendedFriendRequests),
		SendedGroupRequests:  emptyIfNil(u.SendedGroupRequests),
		Dialogs:              emptyIfNil(u.Dialogs),
	}
}

func (u user) APIProfile() api.Profile {
	return api.Profile{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
		Status: u.Status,
	}
}

func (m message) APIMessage() api.Message {
	files := m.Files
	if files == nil {
		files = []api.File{}
	}
	return api.Message{
		ID:        m.ID,
		DialogID:  m.DialogID,
		SenderID:  m.SenderID,
		Text:      m.MessageText,
		Files:     files,
		CreatedAt: m.CreatedAt,
	}
}

func (g group) APIGroup() api.Group {
	return api.Group{
		ID:           g.ID,
		Name:         g.Name,
		Status:       g.Status,
		Admin:        g.Admin,
		Members:      emptyIfNil(g.Members),
		JoinRequests: emptyIfNil(g.JoinRequests),
		Posts:        []api.Post{},
	}
}

func (p post) APIPost() api.Post {
	files := p.Files
	if files == nil {
		files = []api.File{}
	}
	return api.Post{
		ID:        p.ID,
		UserID:    p.UserID,
		GroupID:   p.GroupID,
		Text:      p.PostText,
		Files:     files,
		Likes:     emptyIfNil(p.Likes),
		Comments:  []api.Comment{},
		CreatedAt: p.CreatedAt,
	}
}

func (c comment) APIComment() api.Comment {
	files := c.Files
	if files == nil {
		files = []api.File{}
	}
	return api.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Text:      c.CommentText,
		Files:     files,
		Likes:     emptyIfNil(c.Likes),
		CreatedAt: c.CreatedAt,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
