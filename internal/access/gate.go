package access

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
)

// Gate reads and mutates access state stored on the users table.
type Gate struct {
	db          *sql.DB
	trialLength time.Duration
	events      *events.Recorder
	now         func() time.Time
}

func NewGate(d *sql.DB, trialLength time.Duration, rec *events.Recorder) *Gate {
	if trialLength <= 0 {
		trialLength = 7 * 24 * time.Hour
	}
	return &Gate{db: d, trialLength: trialLength, events: rec, now: time.Now}
}

func (g *Gate) GetUser(ctx context.Context, userID string) (User, error) {
	return getUser(ctx, g.db, userID)
}

// ResolveUser loads the user and resolves their access now.
func (g *Gate) ResolveUser(ctx context.Context, userID string) (Access, error) {
	u, err := g.GetUser(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	return Resolve(u, g.now()), nil
}

// Require fails with access_denied unless the user holds cp.
func (g *Gate) Require(ctx context.Context, userID string, cp Capability) error {
	a, err := g.ResolveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !CapabilitiesOf(a).Has(cp) {
		return errs.ErrAccessDenied
	}
	return nil
}

// StartTrial activates the one-time free trial. The flag check and flip
// are one conditional UPDATE, so concurrent double activation changes at
// most one row.
func (g *Gate) StartTrial(ctx context.Context, userID string) (Access, error) {
	now := g.now()
	end := now.Add(g.trialLength)
	var ev events.Event
	err := db.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users
			SET access_tier=$1, trial_start_at=$2, trial_end_at=$3, trial_used=TRUE
			WHERE id=$4 AND trial_used=FALSE AND access_tier IN ($5,$6)`,
			string(FreeTrial), now.Unix(), end.Unix(), userID, string(NoAccess), string(FreeTrial))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			u, err := getUser(ctx, tx, userID)
			if err != nil {
				return err
			}
			if u.Tier.AtLeast(LimitedAccess) {
				return ErrAlreadyHasAccess
			}
			return ErrTrialAlreadyUsed
		}
		ev, err = g.events.Append(ctx, tx, events.TypeTrialStarted, userID,
			map[string]any{"user_id": userID, "trial_end_at": end.Unix()})
		return err
	})
	if err != nil {
		return Access{}, errs.Fatal("start trial", err)
	}
	g.events.Publish(ctx, ev)
	return g.ResolveUser(ctx, userID)
}

// SetTier is the administrative (payment) toggle.
func (g *Gate) SetTier(ctx context.Context, userID string, tier Tier) error {
	if _, err := ParseTier(string(tier)); err != nil {
		return err
	}
	return g.update(ctx, "set tier", `UPDATE users SET access_tier=$1 WHERE id=$2`, string(tier), userID)
}

func (g *Gate) SetBanned(ctx context.Context, userID string, banned bool) error {
	return g.update(ctx, "set banned", `UPDATE users SET banned=$1 WHERE id=$2`, banned, userID)
}

func (g *Gate) update(ctx context.Context, op, q string, args ...any) error {
	res, err := g.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errs.Fatal(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func getUser(ctx context.Context, q db.Querier, userID string) (User, error) {
	var (
		u          User
		tier       string
		start, end sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `SELECT id, username, role, access_tier, trial_start_at, trial_end_at, trial_used, banned
		FROM users WHERE id=$1`, userID).
		Scan(&u.ID, &u.Username, &u.Role, &tier, &start, &end, &u.TrialUsed, &u.Banned)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, errs.ErrUserNotFound
	}
	if err != nil {
		return User{}, errs.Fatal("get user", err)
	}
	u.Tier = Tier(tier)
	if start.Valid {
		t := time.Unix(start.Int64, 0)
		u.TrialStartAt = &t
	}
	if end.Valid {
		t := time.Unix(end.Int64, 0)
		u.TrialEndAt = &t
	}
	return u, nil
}
