package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/DanilaP/social-network-backend/api"
)

// CreateDialog creates a two-member dialog seeded with the first message
// and links the dialog into both members' dialog sets, all in one
// transaction. An unknown opponent rolls the whole unit back.
func (pg *Postgres) CreateDialog(ctx context.Context, members []string, first api.Message) (api.Dialog, error) {
	if len(members) != 2 {
		return api.Dialog{}, fmt.Errorf("dialog needs exactly 2 members, got %d", len(members))
	}
	row := &dialog{
		ID:      uuid.NewString(),
		Members: members,
	}
	msg := &message{
		ID:          uuid.NewString(),
		DialogID:    row.ID,
		SenderID:    first.SenderID,
		MessageText: first.Text,
		Files:       first.Files,
		CreatedAt:   first.CreatedAt,
	}
	err := pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		a, b, err := lockUserPair(ctx, tx, members[0], members[1])
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert dialog: %w", mapError(err))
		}
		if _, err := tx.NewInsert().Model(msg).Exec(ctx); err != nil {
			return fmt.Errorf("insert message: %w", mapError(err))
		}
		a.Dialogs = addToSet(a.Dialogs, row.ID)
		b.Dialogs = addToSet(b.Dialogs, row.ID)
		if err := updateRelationSets(ctx, tx, a); err != nil {
			return err
		}
		return updateRelationSets(ctx, tx, b)
	})
	if err != nil {
		return api.Dialog{}, err
	}
	return api.Dialog{
		ID:       row.ID,
		Members:  row.Members,
		Messages: []api.Message{msg.APIMessage()},
	}, nil
}

// AppendMessage adds a message to the end of the dialog's message list.
// The sender must be a dialog member.
func (pg *Postgres) AppendMessage(ctx context.Context, dialogID string, m api.Message) (api.Message, error) {
	var row dialog
	if err := pg.bun.NewSelect().Model(&row).Where("id = ?", dialogID).Scan(ctx); err != nil {
		return api.Message{}, fmt.Errorf("select dialog: %w", mapError(err))
	}
	if !slices.Contains(row.Members, m.SenderID) {
		return api.Message{}, api.ErrForbidden
	}
	msg := &message{
		ID:          uuid.NewString(),
		DialogID:    dialogID,
		SenderID:    m.SenderID,
		MessageText: m.Text,
		Files:       m.Files,
		CreatedAt:   m.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(msg).Exec(ctx); err != nil {
		return api.Message{}, fmt.Errorf("insert message: %w", mapError(err))
	}
	return msg.APIMessage(), nil
}

// EditMessage replaces the text of the message matching the ID, leaving
// every other message and field untouched. Only the original sender may
// edit; a sender mismatch on an existing message reports api.ErrForbidden
// and an unknown ID api.ErrNotFound. Returns the dialog with its full
// updated message list.
func (pg *Postgres) EditMessage(ctx context.Context, dialogID, messageID, senderID, text string) (api.Dialog, error) {
	res, err := pg.bun.NewUpdate().Model((*message)(nil)).
		Set("message_text = ?", text).
		Where("id = ?", messageID).
		Where("dialog_id = ?", dialogID).
		Where("sender_id = ?", senderID).
		Exec(ctx)
	if err != nil {
		return api.Dialog{}, fmt.Errorf("update message: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.Dialog{}, pg.explainMessageMiss(ctx, dialogID, messageID)
	}
	return pg.dialogWithMessages(ctx, dialogID)
}

// DeleteMessage removes exactly the message matching the ID; the rest keep
// their relative order. Sender-restricted like EditMessage.
func (pg *Postgres) DeleteMessage(ctx context.Context, dialogID, messageID, senderID string) (api.Dialog, error) {
	res, err := pg.bun.NewDelete().Model((*message)(nil)).
		Where("id = ?", messageID).
		Where("dialog_id = ?", dialogID).
		Where("sender_id = ?", senderID).
		Exec(ctx)
	if err != nil {
		return api.Dialog{}, fmt.Errorf("delete message: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.Dialog{}, pg.explainMessageMiss(ctx, dialogID, messageID)
	}
	return pg.dialogWithMessages(ctx, dialogID)
}

// explainMessageMiss distinguishes "message missing" from "message exists
// but belongs to another sender" after a zero-row conditional update.
func (pg *Postgres) explainMessageMiss(ctx context.Context, dialogID, messageID string) error {
	exists, err := pg.bun.NewSelect().Model((*message)(nil)).
		Where("id = ?", messageID).
		Where("dialog_id = ?", dialogID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("select message: %w", mapError(err))
	}
	return missError(exists)
}

// GetDialog returns the dialog's metadata without its messages.
func (pg *Postgres) GetDialog(ctx context.Context, dialogID string) (api.Dialog, error) {
	var row dialog
	if err := pg.bun.NewSelect().Model(&row).Where("id = ?", dialogID).Scan(ctx); err != nil {
		return api.Dialog{}, fmt.Errorf("select dialog: %w", mapError(err))
	}
	return api.Dialog{ID: row.ID, Members: row.Members, Messages: []api.Message{}}, nil
}

// ListMessages returns the dialog's messages in insertion order, skipping
// excluded IDs.
func (pg *Postgres) ListMessages(ctx context.Context, dialogID string, excludeIDs ...string) ([]api.Message, error) {
	var rows []message
	q := pg.bun.NewSelect().Model(&rows).
		Where("dialog_id = ?", dialogID).
		Order("created_at ASC", "id ASC")
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(excludeIDs))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select messages: %w", mapError(err))
	}
	out := make([]api.Message, len(rows))
	for i, row := range rows {
		out[i] = row.APIMessage()
	}
	return out, nil
}

func (pg *Postgres) dialogWithMessages(ctx context.Context, dialogID string) (api.Dialog, error) {
	var row dialog
	if err := pg.bun.NewSelect().Model(&row).Where("id = ?", dialogID).Scan(ctx); err != nil {
		return api.Dialog{}, fmt.Errorf("select dialog: %w", mapError(err))
	}
	msgs, err := pg.ListMessages(ctx, dialogID)
	if err != nil {
		return api.Dialog{}, err
	}
	return api.Dialog{ID: row.ID, Members: row.Members, Messages: msgs}, nil
}

// ListDialogs returns every dialog the user is a member of, messages
// included.
func (pg *Postgres) ListDialogs(ctx context.Context, userID string) ([]api.Dialog, error) {
	var rows []dialog
	err := pg.bun.NewSelect().Model(&rows).
		Where("? = ANY(members)", userID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select dialogs: %w", mapError(err))
	}
	if len(rows) == 0 {
		return []api.Dialog{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var msgRows []message
	err = pg.bun.NewSelect().Model(&msgRows).
		Where("dialog_id IN (?)", bun.In(ids)).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", mapError(err))
	}
	byDialog := make(map[string][]api.Message, len(rows))
	for _, m := range msgRows {
		byDialog[m.DialogID] = append(byDialog[m.DialogID], m.APIMessage())
	}

	out := make([]api.Dialog, len(rows))
	for i, row := range rows {
		msgs := byDialog[row.ID]
		if msgs == nil {
			msgs = []api.Message{}
		}
		out[i] = api.Dialog{ID: row.ID, Members: row.Members, Messages: msgs}
	}
	return out, nil
}

// DeleteDialog removes the dialog, its messages and the dialog references
// in both members' dialog sets as one atomic unit. Only members may
// delete.
func (pg *Postgres) DeleteDialog(ctx context.Context, dialogID, memberID string) error {
	return pg.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var row dialog
		err := tx.NewSelect().Model(&row).Where("id = ?", dialogID).For("UPDATE").Scan(ctx)
		if err != nil {
			return fmt.Errorf("select dialog: %w", mapError(err))
		}
		if !slices.Contains(row.Members, memberID) {
			return api.ErrForbidden
		}
		if _, err := tx.NewDelete().Model((*message)(nil)).Where("dialog_id = ?", dialogID).Exec(ctx); err != nil {
			return fmt.Errorf("delete messages: %w", mapError(err))
		}
		if _, err := tx.NewDelete().Model((*dialog)(nil)).Where("id = ?", dialogID).Exec(ctx); err != nil {
			return fmt.Errorf("delete dialog: %w", mapError(err))
		}
		if len(row.Members) == 2 {
			a, b, err := lockUserPair(ctx, tx, row.Members[0], row.Members[1])
			if err != nil {
				return err
			}
			a.Dialogs, _ = removeFromSet(a.Dialogs, dialogID)
			b.Dialogs, _ = removeFromSet(b.Dialogs, dialogID)
			if err := updateRelationSets(ctx, tx, a); err != nil {
				return err
			}
			return updateRelationSets(ctx, tx, b)
		}
		return nil
	})
}
