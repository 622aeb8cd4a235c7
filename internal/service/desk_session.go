package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/util"
)

const issueAttempts = 10

// DeskSessionService is the in-memory store of desk pairing tokens. It is
// process-local: a restart drops every active pairing and desks must
// re-issue tokens.
type DeskSessionService struct {
	mu       sync.Mutex
	sessions map[string]model.DeskSession
	ttl      time.Duration
	now      func() time.Time
}

func NewDeskSessionService(ttl time.Duration) *DeskSessionService {
	return &DeskSessionService{
		sessions: make(map[string]model.DeskSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue generates a fresh {deskId, signature} pair and stores it. An
// active deskId is never reused; collisions are retried.
func (s *DeskSessionService) Issue() (model.PairingToken, error) {
	signature, err := util.GenerateSignature()
	if err != nil {
		return model.PairingToken{}, fmt.Errorf("generate signature: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deskID string
	for attempts := 0; ; attempts++ {
		deskID, err = util.GenerateDeskID()
		if err != nil {
			return model.PairingToken{}, fmt.Errorf("generate desk id: %w", err)
		}
		if _, exists := s.sessions[deskID]; !exists {
			break
		}
		if attempts >= issueAttempts {
			return model.PairingToken{}, fmt.Errorf("could not generate unused desk id after %d attempts", issueAttempts)
		}
	}

	s.sessions[deskID] = model.DeskSession{
		Signature: signature,
		CreatedAt: s.now(),
	}

	log.Info().
		Str("deskId", deskID).
		Msg("desk session issued")

	return model.PairingToken{DeskID: deskID, Signature: signature}, nil
}

// Validate reports whether an unexpired session exists for deskID with a
// matching signature. Expired entries are evicted on the way through.
func (s *DeskSessionService) Validate(deskID, signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[deskID]
	if !exists {
		return false
	}

	if s.now().Sub(session.CreatedAt) > s.ttl {
		delete(s.sessions, deskID)
		log.Debug().Str("deskId", deskID).Msg("expired desk session evicted on validate")
		return false
	}

	return util.ConstantTimeEqual(session.Signature, signature)
}

// DeleteExpired removes every session past the TTL. Called periodically
// by the cleanup job.
func (s *DeskSessionService) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for deskID, session := range s.sessions {
		if now.Sub(session.CreatedAt) > s.ttl {
			delete(s.sessions, deskID)
			removed++
		}
	}
	return removed, nil
}

func (s *DeskSessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
