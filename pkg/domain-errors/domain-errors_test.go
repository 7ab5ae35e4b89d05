package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: These are core error primitives used at every trust boundary.
// Callers branch on codes and reasons, so matching must stay precise.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Reason: ReasonChallengeNotFound, Message: "challenge not found"}
		s.Equal("challenge not found", err.Error())
	})

	s.Run("falls back to reason then code", func() {
		s.Equal("credential_not_found", (&Error{Code: CodeNotFound, Reason: ReasonCredentialNotFound}).Error())
		s.Equal("not_found", (&Error{Code: CodeNotFound}).Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("code-only target matches any reason", func() {
		err := NewReason(CodeNotFound, ReasonChallengeNotFound, "gone")
		s.True(errors.Is(err, &Error{Code: CodeNotFound}))
	})

	s.Run("reason target requires the same reason", func() {
		err := NewReason(CodeNotFound, ReasonChallengeNotFound, "gone")
		s.True(errors.Is(err, ErrChallengeNotFound))
		s.False(errors.Is(err, ErrCredentialNotFound))
	})

	s.Run("does not match different codes", func() {
		err := New(CodeUpstreamUnavailable, "storage down")
		s.False(errors.Is(err, &Error{Code: CodeNotFound}))
	})

	s.Run("does not match non-domain errors", func() {
		err := &Error{Code: CodeNotFound}
		s.False(err.Is(errors.New("not found")))
	})

	s.Run("matches through fmt wrapping", func() {
		err := fmt.Errorf("finish: %w", NewReason(CodeStateConflict, ReasonNoActiveImpersonation, "none"))
		s.True(errors.Is(err, ErrNoActiveImpersonation))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves code and reason of wrapped domain error", func() {
		inner := NewReason(CodeVerificationFailed, ReasonSubjectMismatch, "mismatch")
		err := Wrap(inner, CodeInternal, "authentication failed")

		s.True(HasCode(err, CodeVerificationFailed))
		s.True(HasReason(err, ReasonSubjectMismatch))
		s.Equal("authentication failed", err.Error())
	})

	s.Run("assigns code to plain errors", func() {
		err := Wrap(errors.New("dial tcp: refused"), CodeUpstreamUnavailable, "storage unavailable")
		s.True(HasCode(err, CodeUpstreamUnavailable))
		s.False(HasReason(err, ReasonChallengeNotFound))
	})
}
