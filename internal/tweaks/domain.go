package tweaks

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetdesk/fleetdesk/internal/gate"
)

// Tweak is an administrator-curated system command.
type Tweak struct {
	ID                   int64     `json:"id"`
	Slug                 string    `json:"slug"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Command              string    `json:"-"`
	IsDangerous          bool      `json:"is_dangerous"`
	RequiresVerification bool      `json:"requires_verification"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Gated reports whether execution needs out-of-band verification.
func (t Tweak) Gated() bool {
	return t.IsDangerous || t.RequiresVerification
}

var (
	// ErrNotFound indicates the tweak does not exist or is inactive.
	ErrNotFound = errors.New("tweaks: not found")
	// ErrForbidden indicates the actor lacks permission for the tweak.
	ErrForbidden = errors.New("tweaks: forbidden")
)

// action adapts a Tweak to the gate workflow.
type action struct {
	tweak Tweak
}

func (a action) Kind() gate.ActionKind { return gate.KindTweakExecute }
func (a action) ResourceID() string    { return a.tweak.Slug }
func (a action) Label() string         { return "tweak " + a.tweak.Name }
func (a action) Command() string       { return a.tweak.Command }
func (a action) Gated() bool           { return a.tweak.Gated() }

func (a action) OnSuccess(ctx context.Context, tx pgx.Tx) error { return nil }
