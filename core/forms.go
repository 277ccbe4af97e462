package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// PostForm carries the raw submitted fields of the post create/edit form.
// GroupID is the raw select value; empty string means "no group".
type PostForm struct {
	Text    string
	GroupID string
}

// PostFormValues is the normalized result of a successful validation.
type PostFormValues struct {
	Text  string
	Group *Group
}

// FieldErrors maps a form field name to a user-facing message.
type FieldErrors map[string]string

const (
	fieldText  = "text"
	fieldGroup = "group"

	msgEmptyText    = "Текст поста не может быть пустым"
	msgUnknownGroup = "Выбранной группы не существует"
)

// Validate checks the submitted fields and resolves the group reference.
// It returns either normalized values or field-level errors; the third return
// is reserved for infrastructure failures (group lookup errors).
func (f PostForm) Validate(ctx context.Context, groups GroupRepository) (PostFormValues, FieldErrors, error) {
	fieldErrs := FieldErrors{}
	values := PostFormValues{}

	text := strings.TrimSpace(f.Text)
	if text == "" {
		fieldErrs[fieldText] = msgEmptyText
	} else {
		values.Text = text
	}

	if raw := strings.TrimSpace(f.GroupID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fieldErrs[fieldGroup] = msgUnknownGroup
		} else {
			g, err := groups.FindByID(ctx, id)
			switch {
			case errors.Is(err, ErrNotFound):
				fieldErrs[fieldGroup] = msgUnknownGroup
			case err != nil:
				return PostFormValues{}, nil, err
			default:
				values.Group = g
			}
		}
	}

	if len(fieldErrs) > 0 {
		return PostFormValues{}, fieldErrs, nil
	}
	return values, nil, nil
}
