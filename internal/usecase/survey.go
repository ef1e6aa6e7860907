package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/logging"
)

type SurveyStore interface {
	PutSurveyResponse(ctx context.Context, r domain.SurveyResponse) error
	ListSurveyResponses(ctx context.Context) ([]domain.SurveyResponse, error)
	ListSurveyResponsesBySession(ctx context.Context, sessionID string) ([]domain.SurveyResponse, error)
}

type SurveyService struct {
	store SurveyStore
}

type SubmitInput struct {
	SessionID          string `json:"sessionId" validate:"required"`
	Response           string `json:"response" validate:"required"`
	AdditionalComments string `json:"additionalComments"`
}

type SurveyStats struct {
	Total     int                         `json:"total"`
	Breakdown map[domain.SurveyAnswer]int `json:"breakdown"`
}

type SurveyResults struct {
	Stats     SurveyStats
	Responses []domain.SurveyResponse
}

func NewSurveyService(store SurveyStore) (*SurveyService, error) {
	if store == nil {
		return nil, errors.New("usecase: survey store must not be nil")
	}
	return &SurveyService{store: store}, nil
}

func (s *SurveyService) Submit(ctx context.Context, in SubmitInput) (domain.SurveyResponse, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.Response = strings.TrimSpace(in.Response)
	if err := validateInput(in); err != nil {
		return domain.SurveyResponse{}, err
	}
	answer := domain.SurveyAnswer(in.Response)
	if !answer.Valid() {
		return domain.SurveyResponse{}, Validation("response must be one of: " + answerList())
	}

	r := domain.SurveyResponse{
		ResponseID:         newUUID(),
		SessionID:          in.SessionID,
		Response:           answer,
		AdditionalComments: strings.TrimSpace(in.AdditionalComments),
		CreatedAt:          domain.Millis(now()),
	}
	if err := s.store.PutSurveyResponse(ctx, r); err != nil {
		return domain.SurveyResponse{}, newError(ErrorInternal, "Failed to submit survey", err)
	}
	logging.Ctx(ctx).Info().Str("session_id", r.SessionID).Str("response", string(r.Response)).Msg("survey submitted")
	return r, nil
}

// Results aggregates every response with a known answer. The breakdown always
// carries all answers.
func (s *SurveyService) Results(ctx context.Context) (SurveyResults, error) {
	responses, err := s.store.ListSurveyResponses(ctx)
	if err != nil {
		return SurveyResults{}, newError(ErrorInternal, "Failed to retrieve survey results", err)
	}
	breakdown := make(map[domain.SurveyAnswer]int, len(domain.SurveyAnswers))
	for _, a := range domain.SurveyAnswers {
		breakdown[a] = 0
	}
	// Rows without a known answer (older rating-style entries) are left out of
	// both the stats and the list, so total always equals the breakdown sum.
	counted := responses[:0]
	for _, r := range responses {
		if !r.Response.Valid() {
			continue
		}
		breakdown[r.Response]++
		counted = append(counted, r)
	}
	if skipped := len(responses) - len(counted); skipped > 0 {
		logging.Ctx(ctx).Warn().Int("skipped", skipped).Msg("survey rows without a known answer ignored")
	}
	newestFirst(counted)
	return SurveyResults{
		Stats:     SurveyStats{Total: len(counted), Breakdown: breakdown},
		Responses: counted,
	}, nil
}

func (s *SurveyService) BySession(ctx context.Context, sessionID string) ([]domain.SurveyResponse, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, Validation("Session ID is required")
	}
	responses, err := s.store.ListSurveyResponsesBySession(ctx, id)
	if err != nil {
		return nil, newError(ErrorInternal, "Failed to retrieve survey responses", err)
	}
	newestFirst(responses)
	return responses, nil
}

func newestFirst(rs []domain.SurveyResponse) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt > rs[j].CreatedAt })
}

func answerList() string {
	names := make([]string, len(domain.SurveyAnswers))
	for i, a := range domain.SurveyAnswers {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
