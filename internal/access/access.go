// Package access resolves a user's entitlement tier into the set of
// things they may do, and owns the one-time free trial.
package access

import (
	"math"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

type Tier string

const (
	NoAccess      Tier = "no_access"
	FreeTrial     Tier = "free_trial"
	LimitedAccess Tier = "limited_access"
	FullAccess    Tier = "full_access"
)

func (t Tier) rank() int {
	switch t {
	case FreeTrial:
		return 1
	case LimitedAccess:
		return 2
	case FullAccess:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is o or a higher tier.
func (t Tier) AtLeast(o Tier) bool { return t.rank() >= o.rank() }

func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case NoAccess, FreeTrial, LimitedAccess, FullAccess:
		return t, nil
	}
	return "", errs.Validationf("invalid_tier", "unknown access tier %q", s)
}

var (
	ErrTrialAlreadyUsed = errs.Precondition("trial_already_used", "free trial already used")
	ErrAlreadyHasAccess = errs.Precondition("already_has_access", "user already has paid access")
)

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Role         string     `json:"role"`
	Tier         Tier       `json:"access_tier"`
	TrialStartAt *time.Time `json:"trial_start_at,omitempty"`
	TrialEndAt   *time.Time `json:"trial_end_at,omitempty"`
	TrialUsed    bool       `json:"trial_used"`
	Banned       bool       `json:"banned"`
}

type Access struct {
	Tier             Tier `json:"tier"`
	CanAttemptGraded bool `json:"can_attempt_graded"`
	TrialDaysLeft    int  `json:"trial_days_left"`
	IsTrialExpired   bool `json:"is_trial_expired"`
	Banned           bool `json:"banned,omitempty"`
}

// Resolve is the pure access decision for u at now.
func Resolve(u User, now time.Time) Access {
	a := Access{Tier: u.Tier, Banned: u.Banned}
	switch u.Tier {
	case FullAccess, LimitedAccess:
		a.CanAttemptGraded = true
	case FreeTrial:
		if u.TrialEndAt != nil && now.Before(*u.TrialEndAt) {
			a.CanAttemptGraded = true
			a.TrialDaysLeft = int(math.Ceil(u.TrialEndAt.Sub(now).Hours() / 24))
		} else {
			a.IsTrialExpired = true
		}
	default:
		a.Tier = NoAccess
	}
	if u.Banned {
		a.CanAttemptGraded = false
	}
	return a
}

type Capability string

const (
	CapViewContent   Capability = "view_content"
	CapGradedAttempt Capability = "graded_attempt"
)

type Capabilities map[Capability]bool

func (c Capabilities) Has(cp Capability) bool { return c[cp] }

// CapabilitiesOf maps an access decision onto capabilities.
func CapabilitiesOf(a Access) Capabilities {
	caps := Capabilities{}
	if a.Banned {
		return caps
	}
	caps[CapViewContent] = true
	if a.CanAttemptGraded {
		caps[CapGradedAttempt] = true
	}
	return caps
}
