package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/cse-psgtech/infinitum-helpdesk/internal/errors"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
)

const backendTimeout = 5 * time.Second

// ParticipantService talks to the helpdesk backend that owns participant
// records. The relay never calls it; only the desk client does, after a
// scan is acknowledged.
type ParticipantService struct {
	baseURL string
	client  *http.Client
}

func NewParticipantService(baseURL string) *ParticipantService {
	return &ParticipantService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: backendTimeout,
		},
	}
}

// FetchByID looks up a participant by their identifier (e.g. "1234" or
// "INF1234"; the backend uppercases and matches either way).
func (s *ParticipantService) FetchByID(ctx context.Context, id string) (*model.Participant, error) {
	if id == "" {
		return nil, apperrors.MissingRequired("participant id")
	}

	url := fmt.Sprintf("%s/api/participant/%s", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.External("helpdesk backend", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("Participant")
	case resp.StatusCode != http.StatusOK:
		log.Error().
			Str("participantId", id).
			Int("status", resp.StatusCode).
			Msg("participant lookup failed")
		return nil, apperrors.External("helpdesk backend", fmt.Errorf("status %d", resp.StatusCode))
	}

	var participant model.Participant
	if err := json.NewDecoder(resp.Body).Decode(&participant); err != nil {
		return nil, fmt.Errorf("decode participant: %w", err)
	}

	return &participant, nil
}

// MarkKitProvided records kit handover for a participant. The backend
// enforces eligibility (payment done, kit not already provided) and
// reports violations as 400s, which surface here as validation errors.
func (s *ParticipantService) MarkKitProvided(ctx context.Context, id string) (*model.KitResult, error) {
	if id == "" {
		return nil, apperrors.MissingRequired("participant id")
	}

	body, err := json.Marshal(map[string]bool{"kit_provided": true})
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	url := fmt.Sprintf("%s/api/participant/%s/kit", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.External("helpdesk backend", err)
	}
	defer resp.Body.Close()

	var result model.KitResult
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode kit result: %w", decodeErr)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("Participant")
	case resp.StatusCode == http.StatusBadRequest:
		return nil, apperrors.ValidationError(result.Message)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.External("helpdesk backend", fmt.Errorf("status %d", resp.StatusCode))
	}

	log.Info().
		Str("participantId", result.ParticipantID).
		Msg("kit marked provided")

	return &result, nil
}
