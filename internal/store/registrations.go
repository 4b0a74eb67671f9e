package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ghostchat/internal/model"
)

// RegistrationStage tracks how far a sign-up has progressed.
type RegistrationStage string

const (
	StageAwaitGender RegistrationStage = "await_gender"
	StageAwaitEmail  RegistrationStage = "await_email"
	StageAwaitCode   RegistrationStage = "await_code"
	StageAwaitOrg    RegistrationStage = "await_org"
)

// Registration is a sign-up that has not produced a user record yet, or a
// just-created user still answering the org matching question.
type Registration struct {
	UserID      string
	DisplayName string
	Gender      model.Gender
	Email       string
	ReferrerID  string
	Stage       RegistrationStage
	UpdatedAt   time.Time
}

// GetRegistration returns the pending sign-up of userID.
// Returns an error matching model.ErrNotFound if there is none.
func (c conn) GetRegistration(ctx context.Context, userID string) (Registration, error) {
	var (
		r             Registration
		gender, stage string
		updated       string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT user_id, display_name, gender, email, referrer_id, stage, updated_at
		FROM registrations WHERE user_id = ?
	`, userID).Scan(&r.UserID, &r.DisplayName, &gender, &r.Email, &r.ReferrerID, &stage, &updated)
	if err != nil {
		return Registration{}, notFound(err, "get registration", model.NotFound("registration", userID))
	}
	r.Gender = model.Gender(gender)
	r.Stage = RegistrationStage(stage)
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return Registration{}, err
	}
	return r, nil
}

// PutRegistration inserts or replaces a pending sign-up.
func (c conn) PutRegistration(ctx context.Context, r Registration) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO registrations (user_id, display_name, gender, email, referrer_id, stage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			gender = excluded.gender,
			email = excluded.email,
			referrer_id = excluded.referrer_id,
			stage = excluded.stage,
			updated_at = excluded.updated_at
	`, r.UserID, r.DisplayName, string(r.Gender), r.Email, r.ReferrerID, string(r.Stage), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put registration %s: %w", r.UserID, err)
	}
	return nil
}

// DeleteRegistration removes the pending sign-up of userID, if any.
func (c conn) DeleteRegistration(ctx context.Context, userID string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM registrations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete registration %s: %w", userID, err)
	}
	return nil
}
