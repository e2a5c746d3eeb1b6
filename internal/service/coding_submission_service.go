package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/mockmate-judge/internal/dto"
	"github.com/noah-isme/mockmate-judge/internal/judge"
	"github.com/noah-isme/mockmate-judge/internal/models"
	"github.com/noah-isme/mockmate-judge/internal/observability"
	"github.com/noah-isme/mockmate-judge/internal/repository"
	"github.com/noah-isme/mockmate-judge/internal/worker"
	"github.com/noah-isme/mockmate-judge/pkg/language"
)

// CodingSubmissionService exposes the submission lifecycle.
type CodingSubmissionService interface {
	Submit(ctx context.Context, userID uint, payload dto.SubmitCodeRequest) (dto.CodingSubmissionResponse, error)
	Process(ctx context.Context, id uint) error
	Get(ctx context.Context, id uint, userID uint) (dto.CodingSubmissionResponse, error)
	List(ctx context.Context, userID uint, filter dto.CodingSubmissionFilter) ([]dto.CodingSubmissionResponse, error)
	Test(ctx context.Context, payload dto.CodeTestRequest) dto.CodeTestResponse
	Subscribe(id uint) (<-chan dto.CodingSubmissionResponse, func())
	Start(ctx context.Context)
}

// Evaluator grades code against test cases and performs ad-hoc runs.
type Evaluator interface {
	Evaluate(ctx context.Context, submission judge.Submission, testCases []judge.TestCase, hooks judge.Hooks) (judge.Result, error)
	Run(ctx context.Context, submission judge.Submission, input string) (judge.RunOutput, error)
}

// ErrCodingSubmissionNotFound indicates the submission cannot be located for the caller.
var ErrCodingSubmissionNotFound = errors.New("coding submission not found")

// ErrQuestionNotFound indicates the referenced question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// ErrInterviewSessionNotFound indicates the referenced interview session does not exist.
var ErrInterviewSessionNotFound = errors.New("interview session not found")

// ErrEmptyCode indicates blank source code.
var ErrEmptyCode = errors.New("code must not be blank")

// ErrInvalidTransition indicates a status change that the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid submission status transition")

const (
	defaultResultCacheTTL  = 10 * time.Minute
	defaultEventsChannel   = "judge:submissions:events"
	submissionBufferSize   = 1
	submissionCacheKeyBase = "judge:submission:"
)

// CodingSubmissionConfig describes lifecycle knobs.
type CodingSubmissionConfig struct {
	// Dispatcher hands new submissions to an evaluator. Nil evaluates inline through worker.Inline.
	Dispatcher worker.Dispatcher
	// EvaluationDeadline bounds a whole evaluation; exceeding it yields TIMEOUT. Zero disables it.
	EvaluationDeadline time.Duration
	CacheTTL           time.Duration
	EventsChannel      string
}

type codingSubmissionService struct {
	submissions repository.CodingSubmissionRepository
	questions   repository.QuestionRepository
	sessions    repository.InterviewSessionRepository
	evaluator   Evaluator
	cache       *redis.Client
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      CodingSubmissionConfig
	broker      *submissionBroker
	nodeID      string
}

type submissionEvent struct {
	Source     string                       `json:"source"`
	Submission dto.CodingSubmissionResponse `json:"submission"`
	SentAt     time.Time                    `json:"sent_at"`
}

// NewCodingSubmissionService constructs the submission lifecycle service.
func NewCodingSubmissionService(
	submissionRepo repository.CodingSubmissionRepository,
	questionRepo repository.QuestionRepository,
	sessionRepo repository.InterviewSessionRepository,
	evaluator Evaluator,
	cache *redis.Client,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg CodingSubmissionConfig,
) CodingSubmissionService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultResultCacheTTL
	}
	if cfg.EventsChannel == "" {
		cfg.EventsChannel = defaultEventsChannel
	}

	svc := &codingSubmissionService{
		submissions: submissionRepo,
		questions:   questionRepo,
		sessions:    sessionRepo,
		evaluator:   evaluator,
		cache:       cache,
		validator:   validate,
		logger:      logger.With().Str("component", "coding_submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/mockmate-judge/internal/service/coding_submission"),
		config:      cfg,
		broker:      newSubmissionBroker(),
		nodeID:      uuid.NewString(),
	}
	if svc.config.Dispatcher == nil {
		svc.config.Dispatcher = worker.NewInline(svc.Process)
	}
	return svc
}

func (s *codingSubmissionService) Start(ctx context.Context) {
	if s.cache != nil {
		go s.consumeEvents(ctx)
	}
}

func (s *codingSubmissionService) Submit(ctx context.Context, userID uint, payload dto.SubmitCodeRequest) (dto.CodingSubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CodingSubmissionResponse{}, err
	}
	if strings.TrimSpace(payload.Code) == "" {
		return dto.CodingSubmissionResponse{}, ErrEmptyCode
	}
	lang, err := language.Parse(payload.Language)
	if err != nil {
		return dto.CodingSubmissionResponse{}, err
	}

	if _, err := s.questions.GetByID(ctx, payload.QuestionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CodingSubmissionResponse{}, ErrQuestionNotFound
		}
		return dto.CodingSubmissionResponse{}, fmt.Errorf("load question: %w", err)
	}
	if payload.InterviewSessionID != nil {
		if err := s.ensureSession(ctx, *payload.InterviewSessionID); err != nil {
			return dto.CodingSubmissionResponse{}, err
		}
	}

	submission := models.CodingSubmission{
		UserID:             userID,
		QuestionID:         payload.QuestionID,
		InterviewSessionID: payload.InterviewSessionID,
		Code:               payload.Code,
		Language:           string(lang),
		Status:             models.SubmissionStatusPending,
		SubmittedAt:        time.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.CodingSubmissionResponse{}, fmt.Errorf("create submission: %w", err)
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("user_id", userID).
		Uint("question_id", submission.QuestionID).
		Str("language", submission.Language).
		Msg("submission accepted")

	if err := s.config.Dispatcher.Dispatch(ctx, submission.ID); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to dispatch evaluation")
		if markErr := s.fail(ctx, &submission, fmt.Errorf("dispatch evaluation: %w", err), time.Now()); markErr != nil {
			s.logger.Error().Err(markErr).Uint("submission_id", submission.ID).Msg("failed to mark undispatched submission")
		}
		return dto.CodingSubmissionResponse{}, err
	}

	stored, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.CodingSubmissionResponse{}, fmt.Errorf("reload submission: %w", err)
	}
	return dto.NewCodingSubmissionResponse(stored), nil
}

func (s *codingSubmissionService) Process(ctx context.Context, id uint) error {
	started := time.Now()

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodingSubmissionNotFound
		}
		return fmt.Errorf("load submission: %w", err)
	}
	if submission.Status != models.SubmissionStatusPending {
		s.logger.Debug().Uint("submission_id", id).Str("status", string(submission.Status)).Msg("submission already processed")
		return nil
	}

	if s.config.EvaluationDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.EvaluationDeadline)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "coding_submission.process", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submission.ID)),
		attribute.String("submission.language", submission.Language),
	))
	defer span.End()

	if err := s.transition(ctx, &submission, models.SubmissionStatusCompiling); err != nil {
		span.RecordError(err)
		return err
	}

	lang, err := language.Parse(submission.Language)
	if err != nil {
		return s.fail(ctx, &submission, err, started)
	}

	testCases, err := s.questions.ListTestCases(ctx, submission.QuestionID)
	if err != nil {
		return s.fail(ctx, &submission, fmt.Errorf("load test cases: %w", err), started)
	}

	result, err := s.evaluator.Evaluate(ctx, judge.Submission{Code: submission.Code, Language: lang}, toJudgeTestCases(testCases), judge.Hooks{
		OnRunning: func(ctx context.Context) error {
			return s.transition(ctx, &submission, models.SubmissionStatusRunning)
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) && submission.Status.CanTransitionTo(models.SubmissionStatusTimeout) {
			return s.finish(ctx, &submission, models.SubmissionStatusTimeout, started, func(sub *models.CodingSubmission) {
				sub.RuntimeError = fmt.Sprintf("evaluation exceeded %s", s.config.EvaluationDeadline)
			})
		}
		return s.fail(ctx, &submission, err, started)
	}

	observability.TestCases().WithLabelValues(submission.Language, "passed").Add(float64(result.Passed))
	observability.TestCases().WithLabelValues(submission.Language, "failed").Add(float64(result.Total - result.Passed))

	return s.finish(ctx, &submission, models.SubmissionStatusCompleted, started, func(sub *models.CodingSubmission) {
		score := result.Score
		passed, total := result.Passed, result.Total
		elapsed := result.Duration.Milliseconds()
		sub.Score = &score
		sub.TestCasesPassed = &passed
		sub.TotalTestCases = &total
		sub.ExecutionTimeMs = &elapsed
		sub.Feedback = result.Feedback
		sub.CompilationError = result.CompileError
	})
}

func (s *codingSubmissionService) transition(ctx context.Context, submission *models.CodingSubmission, next models.SubmissionStatus) error {
	if !submission.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, submission.Status, next)
	}
	submission.Status = next
	if err := s.submissions.Update(ctx, submission); err != nil {
		return fmt.Errorf("save %s status: %w", next, err)
	}
	return nil
}

func (s *codingSubmissionService) fail(ctx context.Context, submission *models.CodingSubmission, cause error, started time.Time) error {
	s.logger.Error().Err(cause).Uint("submission_id", submission.ID).Msg("submission evaluation failed")
	return s.finish(ctx, submission, models.SubmissionStatusFailed, started, func(sub *models.CodingSubmission) {
		sub.RuntimeError = cause.Error()
	})
}

// finish records a terminal status, then caches and announces it.
func (s *codingSubmissionService) finish(ctx context.Context, submission *models.CodingSubmission, status models.SubmissionStatus, started time.Time, apply func(*models.CodingSubmission)) error {
	if !submission.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, submission.Status, status)
	}

	apply(submission)
	evaluated := time.Now().UTC()
	submission.Status = status
	submission.EvaluatedAt = &evaluated

	// persistence must outlive an expired evaluation deadline
	saveCtx := context.WithoutCancel(ctx)
	if err := s.submissions.Update(saveCtx, submission); err != nil {
		return fmt.Errorf("save %s status: %w", status, err)
	}

	observability.SubmissionsEvaluated().WithLabelValues(submission.Language, string(status)).Inc()
	observability.EvaluationDuration().WithLabelValues(submission.Language).Observe(time.Since(started).Seconds())

	response := dto.NewCodingSubmissionResponse(*submission)
	s.storeCache(saveCtx, response)
	s.broker.broadcast(response)
	if err := s.publish(saveCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish submission event")
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("status", string(status)).
		Dur("elapsed", time.Since(started)).
		Msg("submission evaluated")
	return nil
}

func (s *codingSubmissionService) Get(ctx context.Context, id uint, userID uint) (dto.CodingSubmissionResponse, error) {
	if cached, ok := s.loadCache(ctx, id); ok {
		if cached.UserID != userID {
			return dto.CodingSubmissionResponse{}, ErrCodingSubmissionNotFound
		}
		return cached, nil
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CodingSubmissionResponse{}, ErrCodingSubmissionNotFound
		}
		return dto.CodingSubmissionResponse{}, err
	}
	if submission.UserID != userID {
		return dto.CodingSubmissionResponse{}, ErrCodingSubmissionNotFound
	}

	response := dto.NewCodingSubmissionResponse(submission)
	if submission.IsTerminal() {
		s.storeCache(ctx, response)
	}
	return response, nil
}

func (s *codingSubmissionService) List(ctx context.Context, userID uint, filter dto.CodingSubmissionFilter) ([]dto.CodingSubmissionResponse, error) {
	if filter.InterviewSessionID != nil {
		if err := s.ensureSession(ctx, *filter.InterviewSessionID); err != nil {
			return nil, err
		}
	}

	submissions, err := s.submissions.List(ctx, repository.CodingSubmissionFilter{
		UserID:             userID,
		QuestionID:         filter.QuestionID,
		InterviewSessionID: filter.InterviewSessionID,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewCodingSubmissionResponses(submissions), nil
}

func (s *codingSubmissionService) Test(ctx context.Context, payload dto.CodeTestRequest) dto.CodeTestResponse {
	failure := func(err error) dto.CodeTestResponse {
		return dto.CodeTestResponse{Success: false, Output: "", Error: err.Error()}
	}

	if err := s.validator.Struct(payload); err != nil {
		return failure(err)
	}
	if strings.TrimSpace(payload.Code) == "" {
		return failure(ErrEmptyCode)
	}
	lang, err := language.Parse(payload.Language)
	if err != nil {
		return failure(err)
	}

	output, err := s.evaluator.Run(ctx, judge.Submission{Code: payload.Code, Language: lang}, payload.Input)
	if err != nil {
		s.logger.Warn().Err(err).Str("language", string(lang)).Msg("ad-hoc run failed")
		return failure(err)
	}
	return dto.CodeTestResponse{Success: output.Success, Output: output.Output, Error: output.Error}
}

func (s *codingSubmissionService) Subscribe(id uint) (<-chan dto.CodingSubmissionResponse, func()) {
	channel := make(chan dto.CodingSubmissionResponse, submissionBufferSize)

	s.broker.subscribe(id, channel)
	observability.StatusSubscribersActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(id, channel)
		observability.StatusSubscribersActive().Dec()
	}
	return channel, cleanup
}

func (s *codingSubmissionService) ensureSession(ctx context.Context, id uint) error {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInterviewSessionNotFound
		}
		return fmt.Errorf("load interview session: %w", err)
	}
	return nil
}

func (s *codingSubmissionService) cacheKey(id uint) string {
	return fmt.Sprintf("%s%d", submissionCacheKeyBase, id)
}

func (s *codingSubmissionService) loadCache(ctx context.Context, id uint) (dto.CodingSubmissionResponse, bool) {
	if s.cache == nil {
		return dto.CodingSubmissionResponse{}, false
	}

	cached, err := s.cache.Get(ctx, s.cacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read submission cache")
		}
		return dto.CodingSubmissionResponse{}, false
	}

	var response dto.CodingSubmissionResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		s.logger.Warn().Err(err).Msg("invalid submission cache entry")
		return dto.CodingSubmissionResponse{}, false
	}
	s.logger.Debug().Uint("submission_id", id).Msg("submission cache hit")
	return response, true
}

func (s *codingSubmissionService) storeCache(ctx context.Context, response dto.CodingSubmissionResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(response.ID), payload, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store submission cache")
	}
}

func (s *codingSubmissionService) publish(ctx context.Context, response dto.CodingSubmissionResponse) error {
	if s.cache == nil {
		return nil
	}

	payload, err := json.Marshal(submissionEvent{
		Source:     s.nodeID,
		Submission: response,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.cache.Publish(ctx, s.config.EventsChannel, payload).Err()
}

func (s *codingSubmissionService) consumeEvents(ctx context.Context) {
	pubsub := s.cache.Subscribe(ctx, s.config.EventsChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("submission event subscription closed")
			return
		}

		var event submissionEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Warn().Err(err).Msg("invalid submission event payload")
			continue
		}
		if event.Source == s.nodeID {
			continue
		}
		s.broker.broadcast(event.Submission)
	}
}

func toJudgeTestCases(testCases []models.TestCase) []judge.TestCase {
	converted := make([]judge.TestCase, 0, len(testCases))
	for _, tc := range testCases {
		converted = append(converted, judge.TestCase{
			Input:    tc.Input,
			Expected: tc.ExpectedOutput,
			Hidden:   tc.IsHidden,
		})
	}
	return converted
}
