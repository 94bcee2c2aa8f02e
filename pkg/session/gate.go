package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// GateKind is the finite set of pending-gate states (spec.md §3).
type GateKind string

const (
	GateNone            GateKind = "NONE"
	GateReflectConfirm  GateKind = "REFLECT_CONFIRM"
	GateScaffoldApprove GateKind = "SCAFFOLD_APPROVE"
)

// confirmTokenLen and expiresAfterTurns are indexed by profile, per
// spec.md §3 ("N depends on profile: 4/4/6", "2/3/5 by profile").
var confirmTokenLen = map[epack.Profile]int{
	epack.ProfileFast:          4,
	epack.ProfileStandard:      4,
	epack.ProfileHighAssurance: 6,
}

var expiresAfterTurns = map[epack.Profile]uint64{
	epack.ProfileFast:          2,
	epack.ProfileStandard:      3,
	epack.ProfileHighAssurance: 5,
}

// PendingGate is the frozen confirmation state blocking a turn from
// proceeding to REFLECT/SCAFFOLD-gated generation.
type PendingGate struct {
	Kind                GateKind
	Payload             map[string]any
	PayloadHash         string
	ConfirmToken        string
	Nonce               string
	RequireTokenBinding bool
	CreatedAtInteraction uint64
	ExpiresAfterTurns   uint64
	ConsumedNonces      map[string]bool
	TokenBindingJWT      string // only set when RequireTokenBinding
}

// gateClaims binds a confirm token to a session/interaction/nonce triple
// so a HIGH_ASSURANCE confirmation cannot be replayed against a
// different gate even if the confirm token collides. Grounded on the
// teacher's pkg/identity.IdentityClaims pattern (jwt.RegisteredClaims
// embedding), narrowed to the one claim this gate needs.
type gateClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// OpenGate computes and installs a new pending gate for the given kind
// and payload. scope is an opaque caller-supplied discriminator (e.g. the
// input hash) folded into the nonce so gates for different requests never
// collide. signingKey is used only when profile is HIGH_ASSURANCE, to
// mint a bound confirmation JWT.
func (s *State) OpenGate(kind GateKind, payload map[string]any, scope string, algo canonicalize.Algorithm, signingKey []byte) error {
	payloadHash, err := canonicalize.CanonicalTaggedHash(algo, payload)
	if err != nil {
		return fmt.Errorf("session: hash gate payload: %w", err)
	}

	gate := &PendingGate{
		Kind:                kind,
		Payload:             payload,
		PayloadHash:         payloadHash,
		RequireTokenBinding: s.CurrentProfile == epack.ProfileHighAssurance,
		CreatedAtInteraction: s.InteractionCount,
		ExpiresAfterTurns:   expiresAfterTurns[s.CurrentProfile],
		ConsumedNonces:      make(map[string]bool),
	}
	gate.ConfirmToken = confirmToken(payloadHash, confirmTokenLen[s.CurrentProfile])
	gate.Nonce = s.deriveNonce(kind, payloadHash, scope)

	if gate.RequireTokenBinding {
		tok, err := s.signGateToken(gate.Nonce, signingKey)
		if err != nil {
			return fmt.Errorf("session: sign gate token: %w", err)
		}
		gate.TokenBindingJWT = tok
	}

	s.PendingGate = gate
	return nil
}

// RefreshGate recomputes the payload hash, confirm token, and nonce after
// a revision record is appended to the pending gate's payload, per
// spec.md §4.1's gate-lifecycle "revision intent" branch. The gate kind
// and creation interaction are left untouched.
func (s *State) RefreshGate(scope string, algo canonicalize.Algorithm, signingKey []byte) error {
	gate := s.PendingGate
	if gate == nil {
		return fmt.Errorf("session: no pending gate to refresh")
	}
	payloadHash, err := canonicalize.CanonicalTaggedHash(algo, gate.Payload)
	if err != nil {
		return fmt.Errorf("session: hash gate payload: %w", err)
	}
	gate.PayloadHash = payloadHash
	gate.ConfirmToken = confirmToken(payloadHash, confirmTokenLen[s.CurrentProfile])
	gate.Nonce = s.deriveNonce(gate.Kind, payloadHash, scope)

	if gate.RequireTokenBinding {
		tok, err := s.signGateToken(gate.Nonce, signingKey)
		if err != nil {
			return fmt.Errorf("session: sign gate token: %w", err)
		}
		gate.TokenBindingJWT = tok
	}
	return nil
}

// Expired reports whether the pending gate's turn budget has elapsed.
func (s *State) Expired() bool {
	if s.PendingGate == nil {
		return false
	}
	delta := s.InteractionCount - s.PendingGate.CreatedAtInteraction
	return delta >= s.PendingGate.ExpiresAfterTurns
}

// ClearGate removes the pending gate entirely.
func (s *State) ClearGate() { s.PendingGate = nil }

// AcceptOutcome classifies a confirm attempt against the active gate.
type AcceptOutcome string

const (
	AcceptOK            AcceptOutcome = "ACCEPTED"
	AcceptReplay        AcceptOutcome = "REPLAY_DETECTED"
	AcceptTokenMismatch AcceptOutcome = "TOKEN_MISMATCH"
	AcceptMissingToken  AcceptOutcome = "MISSING_TOKEN"
)

// TryAccept validates a confirmation attempt's token/nonce against the
// active gate. If accepted, the nonce is consumed (marked spent) so a
// replayed confirmation is rejected even if the gate is still active.
func (s *State) TryAccept(presentedToken string, signingKeyOrEmpty []byte) (AcceptOutcome, error) {
	gate := s.PendingGate
	if gate == nil {
		return "", fmt.Errorf("session: no pending gate")
	}

	if gate.RequireTokenBinding {
		if presentedToken == "" {
			return AcceptMissingToken, nil
		}
		claims, err := s.verifyGateToken(presentedToken, signingKeyOrEmpty)
		if err != nil || claims.Nonce != gate.Nonce {
			return AcceptTokenMismatch, nil
		}
	} else {
		if !strings.EqualFold(presentedToken, gate.ConfirmToken) {
			return AcceptTokenMismatch, nil
		}
	}

	if gate.ConsumedNonces[gate.Nonce] {
		return AcceptReplay, nil
	}
	gate.ConsumedNonces[gate.Nonce] = true
	return AcceptOK, nil
}

func confirmToken(payloadHash string, n int) string {
	h := payloadHash
	if idx := strings.Index(h, ":"); idx >= 0 {
		h = h[idx+1:]
	}
	if len(h) < n {
		return h
	}
	return h[len(h)-n:]
}

func (s *State) deriveNonce(kind GateKind, payloadHash, scope string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d|%s|%s|%s", s.InteractionCount, kind, payloadHash, scope)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *State) signGateToken(nonce string, signingKey []byte) (string, error) {
	now := time.Now().UTC()
	claims := gateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.SessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
			Issuer:    "ecosphere/session",
		},
		Nonce: nonce,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

func (s *State) verifyGateToken(tokenString string, signingKey []byte) (*gateClaims, error) {
	claims := &gateClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Method)
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("session: invalid gate token")
	}
	return claims, nil
}
