package service

import (
	"context"
	"time"

	"github.com/gatehouse-cms/gatehouse/internal/config"
	"github.com/gatehouse-cms/gatehouse/internal/model"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutPolicy tracks consecutive failed logins per admin and locks the
// account for a cool-down once the threshold is reached. Expiry is lazy:
// a lock simply stops applying once its deadline passes.
type LockoutPolicy struct {
	store     *config.Store
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func NewLockoutPolicy(store *config.Store, threshold int, duration time.Duration) *LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutPolicy{
		store:     store,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// IsLocked reports whether a is locked at the policy's current time.
func (p *LockoutPolicy) IsLocked(a *model.Admin) bool {
	return a.LockoutUntil != nil && p.now().Before(*a.LockoutUntil)
}

// RecordAttempt applies one login outcome atomically. A failure increments
// the counter, restarting from zero when a previous lock has already expired,
// and locks the account once the threshold is reached. A success clears the
// counter and the lock and stamps lastLoginAt.
func (p *LockoutPolicy) RecordAttempt(ctx context.Context, adminID int64, success bool) (model.LoginState, error) {
	now := p.now().UTC()
	return p.store.UpdateLoginState(ctx, adminID, func(st model.LoginState) model.LoginState {
		if success {
			return model.LoginState{LastLoginAt: &now}
		}
		if st.LockoutUntil != nil && !now.Before(*st.LockoutUntil) {
			st.FailedLoginAttempts = 0
			st.LockoutUntil = nil
		}
		st.FailedLoginAttempts++
		if st.FailedLoginAttempts >= p.threshold {
			until := now.Add(p.duration)
			st.LockoutUntil = &until
		}
		return st
	})
}

// Unlock clears the counter and any lock without touching lastLoginAt.
func (p *LockoutPolicy) Unlock(ctx context.Context, adminID int64) error {
	_, err := p.store.UpdateLoginState(ctx, adminID, func(st model.LoginState) model.LoginState {
		st.FailedLoginAttempts = 0
		st.LockoutUntil = nil
		return st
	})
	return err
}
