// Package tokens mints and parses the secrets that drive a registration.
//
// The verification token is opaque random hex. Decision tokens are
// structured as {action}_{sessionID}_{unixNano}_{nonce} so the owning session
// can be located from the link alone; reviewer links carry the short form
// with the action prefix dropped. Each token draws its own nonce, so the short
// approval and rejection forms differ. A located session is only acted on
// when the presented token matches the stored one in constant time.
package tokens

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

const (
	verificationTokenBytes = 16
	decisionNonceBytes     = 8
	maxTokenLength         = 128
	separator              = "_"
)

// Generator mints tokens. The zero value is not usable; use New.
type Generator struct {
	random io.Reader
	now    func() time.Time
}

type Option func(*Generator)

// WithRandom replaces crypto/rand.Reader. Tests only.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		random: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VerificationToken returns 32 hex characters of CSPRNG output.
func (g *Generator) VerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DecisionTokens mints the approval and rejection tokens for a session.
// They share the mint instant but not the nonce.
func (g *Generator) DecisionTokens(sessionID id.SessionID) (approve, reject string, err error) {
	ts := g.now().UnixNano()
	approveNonce, err := g.nonce()
	if err != nil {
		return "", "", err
	}
	rejectNonce, err := g.nonce()
	if err != nil {
		return "", "", err
	}
	return DecisionToken(models.ActionApprove, sessionID, ts, approveNonce),
		DecisionToken(models.ActionReject, sessionID, ts, rejectNonce), nil
}

func (g *Generator) nonce() (string, error) {
	buf := make([]byte, decisionNonceBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DecisionToken formats the fully-qualified token for action.
func DecisionToken(action models.Action, sessionID id.SessionID, unixNano int64, nonce string) string {
	return string(action) + separator + sessionID.String() + separator + strconv.FormatInt(unixNano, 10) + separator + nonce
}

// Short drops the action prefix. It is the form embedded in reviewer links.
func Short(token string) string {
	for _, action := range []models.Action{models.ActionApprove, models.ActionReject} {
		if rest, ok := strings.CutPrefix(token, string(action)+separator); ok {
			return rest
		}
	}
	return token
}

// Parsed is the structure recovered from a decision token.
type Parsed struct {
	SessionID id.SessionID
	// Action is empty when the short form was presented.
	Action models.Action
}

// Parse accepts both the fully-qualified and the short form. Tokens minted
// before nonces were added carry no trailing segment and still parse.
func Parse(token string) (*Parsed, error) {
	if token == "" || len(token) > maxTokenLength {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "malformed decision token")
	}

	var action models.Action
	rest := token
	for _, candidate := range []models.Action{models.ActionApprove, models.ActionReject} {
		if r, ok := strings.CutPrefix(token, string(candidate)+separator); ok {
			action, rest = candidate, r
			break
		}
	}

	rawSession, rawTS, ok := strings.Cut(rest, separator)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "malformed decision token")
	}
	sessionID, err := id.ParseSessionID(rawSession)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "malformed decision token")
	}
	rawTS, nonce, hasNonce := strings.Cut(rawTS, separator)
	if ts, err := strconv.ParseInt(rawTS, 10, 64); err != nil || ts <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "malformed decision token")
	}
	if hasNonce && !validNonce(nonce) {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "malformed decision token")
	}
	return &Parsed{SessionID: sessionID, Action: action}, nil
}

func validNonce(nonce string) bool {
	if len(nonce) != 2*decisionNonceBytes {
		return false
	}
	_, err := hex.DecodeString(nonce)
	return err == nil
}

// Matches reports whether presented is stored or the short form of stored.
// The comparison runs in constant time over the suffix.
func Matches(stored, presented string) bool {
	if stored == "" || presented == "" || len(presented) > len(stored) {
		return false
	}
	suffix := stored[len(stored)-len(presented):]
	if subtle.ConstantTimeCompare([]byte(suffix), []byte(presented)) != 1 {
		return false
	}
	// A suffix match must start on a token boundary: either the whole token
	// or everything after the action prefix.
	return len(presented) == len(stored) || presented == Short(stored)
}
