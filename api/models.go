package api

import "time"

// A User is a full account record including relation sets. The password
// hash never leaves the process.
type User struct {
	ID                   string   `json:"id"`
	Email                string   `json:"email"`
	PasswordHash         string   `json:"-"`
	Name                 string   `json:"name"`
	Avatar               string   `json:"avatar"`
	Status               string   `json:"status"`
	Role                 string   `json:"role"`
	Friends              []string `json:"friends"`
	FriendRequests       []string `json:"friendRequests"`
	SendedFriendRequests []string `json:"sendedFriendRequests"`
	SendedGroupRequests  []string `json:"sendedApplicationsToGroups"`
	Dialogs              []string `json:"dialogs"`
}

// A Profile is the public projection of a user shown in listings, friend
// lists and dialog member lists.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Status string `json:"status,omitempty"`
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Status *string `json:"status"`
}

// A File is metadata of an uploaded attachment. Upload storage itself is
// an external concern; handlers only carry the references through.
type File struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FileType string `json:"fileType"`
}

// A Message is one entry of a dialog's ordered message list.
type Message struct {
	ID        string    `json:"id"`
	DialogID  string    `json:"dialog_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Files     []File    `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// A Dialog is a two-member conversation.
type Dialog struct {
	ID       string    `json:"id"`
	Members  []string  `json:"members"`
	Messages []Message `json:"messages"`
}

// DialogInfo is a dialog with its member IDs resolved to profiles, as
// returned by the dialog listing.
type DialogInfo struct {
	ID       string    `json:"id"`
	Members  []Profile `json:"members"`
	Messages []Message `json:"messages"`
}

// A Post is a feed or group post with its like set and comments.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Text      string    `json:"text"`
	Files     []File    `json:"files"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	IsLiked   bool      `json:"isLiked"`
}

// A Comment is one entry of a post's ordered comment list, with its own
// like set.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Files     []File    `json:"files"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// A Group is an interest group owned by a single admin.
type Group struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Admin        string   `json:"admin"`
	Members      []string `json:"members"`
	JoinRequests []string `json:"joinRequests"`
	Posts        []Post   `json:"posts"`
}

// Push frame types for the dialog channel.
const (
	EventNewMessage    = "new_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
)

// A DialogEvent is the frame pushed to live dialog members. New messages
// carry the single message; edits and deletions carry the full updated
// list.
type DialogEvent struct {
	Type     string    `json:"type"`
	DialogID string    `json:"dialog_id"`
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}
