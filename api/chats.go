package api

import (
	"errors"
	"net/http"
	"slices"
	"time"
)

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		DialogID   string `json:"dialog_id"`
		OpponentID string `json:"opponent_id" validate:"required"`
		Text       string `json:"text" validate:"required"`
		Files      []File `json:"files"`
	}
	type response struct {
		Message     string  `json:"message"`
		DialogID    string  `json:"dialog_id"`
		MessageInfo Message `json:"messageInfo"`
	}

	senderID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg := Message{
		SenderID:  senderID,
		Text:      body.Text,
		Files:     body.Files,
		CreatedAt: time.Now(),
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()

	if body.DialogID != "" {
		stored, err := a.Dialogs.AppendMessage(ctx, body.DialogID, msg)
		if err != nil {
			a.respondStoreError(w, err, "Could not send message")
			return
		}
		msg = stored
	} else {
		dlg, err := a.Dialogs.CreateDialog(ctx, []string{senderID, body.OpponentID}, msg)
		if err != nil {
			a.respondStoreError(w, err, "Could not send message")
			return
		}
		msg = dlg.Messages[0]
	}

	if err := a.Cache.InsertMessage(ctx, msg.DialogID, msg); err != nil {
		a.Logger.Error("Could not cache message", "error", err.Error())
	}

	// The durable write is committed; delivery is best effort and does not
	// affect the response.
	a.Push.Broadcast([]string{body.OpponentID}, DialogEvent{
		Type:     EventNewMessage,
		DialogID: msg.DialogID,
		Message:  &msg,
	})

	a.respond(w, http.StatusOK, response{
		Message:     "Message sent",
		DialogID:    msg.DialogID,
		MessageInfo: msg,
	})
}

func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		DialogID  string `json:"dialog_id" validate:"required"`
		MessageID string `json:"message_id" validate:"required"`
		Text      string `json:"text" validate:"required"`
	}
	type response struct {
		Message  string    `json:"message"`
		Messages []Message `json:"messages"`
	}

	senderID, ok := a.identify(w, r)
	if !ok {
		return
	}

	var body request
	if !a.decodeBody(w, r, &body) {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	dlg, err := a.Dialogs.EditMessage(ctx, body.DialogID, body.MessageID, senderID, body.Text)
	if err != nil {
		a.respondStoreError(w, err, "Could not edit message")
		return
	}

	if err := a.Cache.DropDialog(ctx, dlg.ID); err != nil {
		a.Logger.Error("Could not invalidate dialog cache", "error", err.Error())
	}

	a.Push.Broadcast(dlg.Members, DialogEvent{
		Type:     EventEditMessage,
		DialogID: dlg.ID,
		Messages: dlg.Messages,
	})

	a.respond(w, http.StatusOK, response{Message: "Message edited", Messages: dlg.Messages})
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message  string    `json:"message"`
		Messages []Message `json:"messages"`
	}

	senderID, ok := a.identify(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	dialogID, messageID := q.Get("dialog_id"), q.Get("message_id")
	if dialogID == "" || messageID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing dialog_id or message_id"), "Missing dialog_id or message_id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	dlg, err := a.Dialogs.DeleteMessage(ctx, dialogID, messageID, senderID)
	if err != nil {
		a.respondStoreError(w, err, "Could not delete message")
		return
	}

	if err := a.Cache.DropDialog(ctx, dlg.ID); err != nil {
		a.Logger.Error("Could not invalidate dialog cache", "error", err.Error())
	}

	a.Push.Broadcast(dlg.Members, DialogEvent{
		Type:     EventDeleteMessage,
		DialogID: dlg.ID,
		Messages: dlg.Messages,
	})

	a.respond(w, http.StatusOK, response{Message: "Message deleted", Messages: dlg.Messages})
}

func (a *API) listDialogMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message  string    `json:"message"`
		Messages []Message `json:"messages"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	dialogID := r.URL.Query().Get("dialog_id")
	if dialogID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing dialog_id"), "Missing dialog_id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	dlg, err := a.Dialogs.GetDialog(ctx, dialogID)
	if err != nil {
		a.respondStoreError(w, err, "Could not get dialog")
		return
	}
	if !slices.Contains(dlg.Members, userID) {
		a.respondError(w, http.StatusForbidden, ErrForbidden, "Not a dialog member")
		return
	}

	// Recent messages from cache, the remainder from the database.
	cached, err := a.Cache.ListMessages(ctx, dialogID)
	if err != nil {
		a.respondStoreError(w, err, "Could not list messages")
		return
	}
	a.Logger.Info("Got messages from cache", "dialog_id", dialogID, "count", len(cached))

	cachedIDs := make([]string, len(cached))
	for i, msg := range cached {
		cachedIDs[i] = msg.ID
	}
	msgs, err := a.Dialogs.ListMessages(ctx, dialogID, cachedIDs...)
	if err != nil {
		a.respondStoreError(w, err, "Could not list messages")
		return
	}
	msgs = append(msgs, cached...)

	if msgs == nil {
		msgs = []Message{}
	}
	a.respond(w, http.StatusOK, response{Message: "Dialog messages", Messages: msgs})
}
