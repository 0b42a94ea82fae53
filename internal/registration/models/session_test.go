package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(id.NewSessionID(fixedNow), Application{
		OrganizationName: "Acme",
		ContactEmail:     "ops@acme.io",
	}, "abc123", 3, fixedNow, time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewSession(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := newTestSession(t)
		assert.Equal(t, StatusStaged, s.Status)
		assert.Equal(t, fixedNow.Add(time.Hour), s.ExpiresAt)
		assert.Equal(t, 3, s.MaxVerificationAttempts)
		assert.Nil(t, s.AffiliateID)
	})

	t.Run("zero max attempts falls back to default", func(t *testing.T) {
		s, err := NewSession(id.NewSessionID(fixedNow), Application{}, "tok", 0, fixedNow, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxVerificationAttempts, s.MaxVerificationAttempts)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		_, err := NewSession(id.NewSessionID(fixedNow), Application{}, "", 3, fixedNow, time.Hour)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		_, err := NewSession(id.NewSessionID(fixedNow), Application{}, "tok", 3, fixedNow, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestStatusAt(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, StatusStaged, s.StatusAt(fixedNow.Add(59*time.Minute)))
	assert.Equal(t, StatusExpired, s.StatusAt(fixedNow.Add(time.Hour)))
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusStaged, StatusEmailVerified, true},
		{StatusStaged, StatusAffiliatePending, false},
		{StatusEmailVerified, StatusAffiliatePending, true},
		{StatusEmailVerified, StatusStaged, false},
		{StatusAffiliatePending, StatusAdminApproved, true},
		{StatusAffiliatePending, StatusAdminRejected, true},
		{StatusAffiliatePending, StatusCompleted, false},
		{StatusAdminApproved, StatusCompleted, true},
		{StatusAdminRejected, StatusCompleted, true},
		{StatusCompleted, StatusStaged, false},
		{StatusExpired, StatusStaged, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestVerificationFlow(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.CanVerify())
	assert.False(t, s.VerificationMatches("wrong"))
	assert.False(t, s.VerificationMatches(""))
	assert.True(t, s.VerificationMatches("abc123"))

	s.ApplyEmailVerified(fixedNow)
	assert.Equal(t, StatusEmailVerified, s.Status)
	require.NotNil(t, s.EmailVerifiedAt)
	assert.True(t, dErrors.HasCode(s.CanVerify(), dErrors.CodeInvalidState))

	affID := id.NewAffiliateID()
	require.NoError(t, s.CanMarkAffiliatePending())
	s.ApplyAffiliatePending(affID, "approve_x", "reject_x", fixedNow)
	assert.Equal(t, StatusAffiliatePending, s.Status)
	assert.Equal(t, affID, *s.AffiliateID)
	assert.True(t, s.Status.HasAffiliate())
	assert.Equal(t, "approve_x", s.DecisionTokenFor(ActionApprove))
	assert.Equal(t, "reject_x", s.DecisionTokenFor(ActionReject))
}

func TestAttemptsExhausted(t *testing.T) {
	s := newTestSession(t)
	for range s.MaxVerificationAttempts {
		require.NoError(t, s.CanVerify())
		s.ApplyFailedAttempt(fixedNow)
	}
	err := s.CanVerify()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAttemptsExhausted))
	assert.Equal(t, StatusStaged, s.Status)
}

func TestReleaseVerificationClaim(t *testing.T) {
	s := newTestSession(t)
	assert.Error(t, s.CanReleaseVerificationClaim())

	s.ApplyEmailVerified(fixedNow)
	require.NoError(t, s.CanReleaseVerificationClaim())
	s.ApplyReleaseVerificationClaim(fixedNow)
	assert.Equal(t, StatusStaged, s.Status)
	assert.Nil(t, s.EmailVerifiedAt)
}

func TestDecision(t *testing.T) {
	pending := func() *Session {
		s := newTestSession(t)
		s.ApplyEmailVerified(fixedNow)
		s.ApplyAffiliatePending(id.NewAffiliateID(), "a", "r", fixedNow)
		return s
	}

	t.Run("approve then complete", func(t *testing.T) {
		s := pending()
		require.NoError(t, s.CanDecide(ActionApprove))
		s.ApplyDecision(ActionApprove, id.ReviewerID("rev-1"), "", fixedNow)
		assert.Equal(t, StatusAdminApproved, s.Status)
		assert.True(t, s.AlreadyDecided(ActionApprove))
		assert.False(t, s.AlreadyDecided(ActionReject))

		require.NoError(t, s.CanComplete())
		s.ApplyCompleted(fixedNow)
		assert.Equal(t, StatusCompleted, s.Status)
	})

	t.Run("opposite action after decision is invalid state", func(t *testing.T) {
		s := pending()
		s.ApplyDecision(ActionReject, id.ReviewerID("rev-1"), "spam", fixedNow)
		err := s.CanDecide(ActionApprove)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Contains(t, err.Error(), "rejected")
	})

	t.Run("staged session cannot be decided", func(t *testing.T) {
		s := newTestSession(t)
		assert.True(t, dErrors.HasCode(s.CanDecide(ActionApprove), dErrors.CodeInvalidState))
	})
}

func TestDecisionLease(t *testing.T) {
	decided := func() *Session {
		s := newTestSession(t)
		s.ApplyEmailVerified(fixedNow)
		s.ApplyAffiliatePending(id.NewAffiliateID(), "a", "r", fixedNow)
		s.ApplyDecision(ActionApprove, id.ReviewerID("rev-1"), "", fixedNow)
		return s
	}
	until := fixedNow.Add(2 * time.Minute)

	t.Run("unleased decision can be taken over", func(t *testing.T) {
		s := decided()
		assert.False(t, s.DecisionInFlight(fixedNow))
		assert.NoError(t, s.CanTakeOverDecision(ActionApprove, fixedNow))
	})

	t.Run("live lease blocks a takeover until it lapses", func(t *testing.T) {
		s := decided()
		s.ApplyDecisionLease(until, fixedNow)

		assert.True(t, s.DecisionInFlight(fixedNow))
		assert.True(t, dErrors.HasCode(s.CanTakeOverDecision(ActionApprove, fixedNow), dErrors.CodeConflict))
		assert.NoError(t, s.CanTakeOverDecision(ActionApprove, until))
	})

	t.Run("only the current holder releases", func(t *testing.T) {
		s := decided()
		s.ApplyDecisionLease(until, fixedNow)

		assert.Error(t, s.CanReleaseDecisionLease(until.Add(time.Second)))
		require.NoError(t, s.CanReleaseDecisionLease(until))
		s.ApplyDecisionLease(time.Time{}, fixedNow)
		assert.False(t, s.DecisionInFlight(fixedNow))
	})

	t.Run("completed or opposite decisions are not taken over", func(t *testing.T) {
		s := decided()
		assert.True(t, dErrors.HasCode(s.CanTakeOverDecision(ActionReject, fixedNow), dErrors.CodeInvalidState))
		s.ApplyCompleted(fixedNow)
		assert.True(t, dErrors.HasCode(s.CanTakeOverDecision(ActionApprove, fixedNow), dErrors.CodeInvalidState))
	})
}

func TestSnapshotStripsSecrets(t *testing.T) {
	s := newTestSession(t)
	s.Application.Attributes = map[string]string{"ref": "partner"}
	s.ApplyEmailVerified(fixedNow)
	s.ApplyAffiliatePending(id.NewAffiliateID(), "approve_tok", "reject_tok", fixedNow)

	snap := s.Snapshot(fixedNow)
	assert.Empty(t, snap.VerificationToken)
	assert.Empty(t, snap.ApprovalToken)
	assert.Empty(t, snap.RejectionToken)
	assert.Equal(t, s.AffiliateID.String(), snap.AffiliateID.String())

	snap.Application.Attributes["ref"] = "changed"
	assert.Equal(t, "partner", s.Application.Attributes["ref"])
	assert.Equal(t, "approve_tok", s.ApprovalToken)

	assert.Equal(t, StatusExpired, s.Snapshot(fixedNow.Add(2*time.Hour)).Status)
}

func TestApplicationNormalizeAndValidate(t *testing.T) {
	app := Application{
		OrganizationName: "  Acme  ",
		ContactEmail:     " Ops@Acme.IO ",
		Country:          " de ",
	}
	app.Normalize()
	assert.Equal(t, "Acme", app.OrganizationName)
	assert.Equal(t, "ops@acme.io", app.ContactEmail)
	assert.Equal(t, "DE", app.Country)
	require.NoError(t, app.Validate())
	assert.Equal(t, "Ops", app.GreetingName())

	missing := Application{ContactEmail: "a@b.io"}
	assert.True(t, dErrors.HasCode(missing.Validate(), dErrors.CodeValidation))

	bad := Application{OrganizationName: "x", ContactEmail: "not-an-email"}
	assert.True(t, dErrors.HasCode(bad.Validate(), dErrors.CodeValidation))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("approve")
	require.NoError(t, err)
	assert.Equal(t, StatusAdminApproved, a.TargetStatus())

	_, err = ParseAction("maybe")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
