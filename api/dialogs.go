package api

import (
	"errors"
	"net/http"
)

func (a *API) listDialogs(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string       `json:"message"`
		Dialogs []DialogInfo `json:"dialogs"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	dialogs, err := a.Dialogs.ListDialogs(ctx, userID)
	if err != nil {
		a.respondStoreError(w, err, "Could not list dialogs")
		return
	}

	// Resolve member IDs to public profiles in one batch.
	memberIDs := make([]string, 0, len(dialogs)*2)
	for _, dlg := range dialogs {
		memberIDs = append(memberIDs, dlg.Members...)
	}
	profiles, err := a.Users.ListProfiles(ctx, memberIDs)
	if err != nil {
		a.respondStoreError(w, err, "Could not list dialogs")
		return
	}
	byID := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	out := make([]DialogInfo, len(dialogs))
	for i, dlg := range dialogs {
		info := DialogInfo{ID: dlg.ID, Messages: dlg.Messages, Members: make([]Profile, 0, len(dlg.Members))}
		for _, id := range dlg.Members {
			if p, ok := byID[id]; ok {
				info.Members = append(info.Members, p)
			}
		}
		out[i] = info
	}

	a.respond(w, http.StatusOK, response{Message: "Dialog list", Dialogs: out})
}

func (a *API) deleteDialog(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}

	userID, ok := a.identify(w, r)
	if !ok {
		return
	}

	dialogID := r.URL.Query().Get("dialog_id")
	if dialogID == "" {
		dialogID = r.URL.Query().Get("id")
	}
	if dialogID == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing dialog_id"), "Missing dialog_id")
		return
	}

	ctx, cancel := a.storeCtx(r)
	defer cancel()
	if err := a.Dialogs.DeleteDialog(ctx, dialogID, userID); err != nil {
		a.respondStoreError(w, err, "Could not delete dialog")
		return
	}

	if err := a.Cache.DropDialog(ctx, dialogID); err != nil {
		a.Logger.Error("Could not invalidate dialog cache", "error", err.Error())
	}

	a.respond(w, http.StatusOK, response{Message: "Dialog deleted"})
}
