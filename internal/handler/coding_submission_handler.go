package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mockmate-judge/internal/dto"
	"github.com/noah-isme/mockmate-judge/internal/middleware"
	"github.com/noah-isme/mockmate-judge/internal/models"
	"github.com/noah-isme/mockmate-judge/internal/service"
	"github.com/noah-isme/mockmate-judge/internal/utils"
	"github.com/noah-isme/mockmate-judge/internal/worker"
	"github.com/noah-isme/mockmate-judge/pkg/language"
)

// Websocket close codes in the private range.
const (
	closeNotFound = 4404
	closeTimeout  = 4408
	closeInternal = 4500
)

const defaultStatusWait = 2 * time.Minute

// CodingSubmissionHandler exposes the judge endpoints.
type CodingSubmissionHandler struct {
	service    service.CodingSubmissionService
	logger     zerolog.Logger
	statusWait time.Duration
}

// NewCodingSubmissionHandler constructs the handler. statusWait bounds how long a
// websocket subscriber waits for a terminal status.
func NewCodingSubmissionHandler(service service.CodingSubmissionService, statusWait time.Duration, logger zerolog.Logger) *CodingSubmissionHandler {
	if statusWait <= 0 {
		statusWait = defaultStatusWait
	}
	return &CodingSubmissionHandler{
		service:    service,
		logger:     logger.With().Str("component", "coding_submission_handler").Logger(),
		statusWait: statusWait,
	}
}

// Register wires the handler endpoints into the router group.
func (h *CodingSubmissionHandler) Register(router fiber.Router) {
	router.Post("/submit", h.submit)
	router.Get("/submissions", h.list)
	router.Use("/submissions/:id/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("request_ctx", middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c)))
		return c.Next()
	})
	router.Get("/submissions/:id/ws", websocket.New(h.streamStatus))
	router.Get("/submissions/:id", h.get)
	router.Post("/test", h.test)
}

func (h *CodingSubmissionHandler) submit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var payload dto.SubmitCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Submit(c.UserContext(), userID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	status := fiber.StatusCreated
	if !models.SubmissionStatus(response.Status).Terminal() {
		status = fiber.StatusAccepted
	}
	return utils.SendSuccessWithStatus(c, status, "submission received", response)
}

func (h *CodingSubmissionHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	questionID, err := parseOptionalUintQuery(c, "question_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	sessionID, err := parseOptionalUintQuery(c, "interview_session_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.List(c.UserContext(), userID, dto.CodingSubmissionFilter{
		QuestionID:         questionID,
		InterviewSessionID: sessionID,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *CodingSubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Get(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *CodingSubmissionHandler) test(c *fiber.Ctx) error {
	var payload dto.CodeTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response := h.service.Test(c.UserContext(), payload)
	return utils.SendSuccess(c, "code executed", response)
}

// streamStatus sends the terminal state of a submission once and closes.
func (h *CodingSubmissionHandler) streamStatus(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	ctx, ok := conn.Locals("request_ctx").(context.Context)
	if !ok {
		ctx = context.Background()
	}
	logger := h.logger.With().Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Logger()

	userID, _ := conn.Locals("user_id").(uint)
	id, err := parseUint(conn.Params("id"))
	if err != nil || userID == 0 {
		closeWith(conn, closeNotFound, "submission not found")
		return
	}

	// subscribe before reading so a completion in between is not missed
	updates, unsubscribe := h.service.Subscribe(id)
	defer unsubscribe()

	current, err := h.service.Get(ctx, id, userID)
	if err != nil {
		if errors.Is(err, service.ErrCodingSubmissionNotFound) {
			closeWith(conn, closeNotFound, "submission not found")
			return
		}
		logger.Error().Err(err).Uint("submission_id", id).Msg("failed to load submission for websocket")
		closeWith(conn, closeInternal, "internal server error")
		return
	}

	if !models.SubmissionStatus(current.Status).Terminal() {
		disconnected := make(chan struct{})
		go func() {
			defer close(disconnected)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		timer := time.NewTimer(h.statusWait)
		defer timer.Stop()

		select {
		case update, open := <-updates:
			if !open {
				return
			}
			current = update
		case <-disconnected:
			return
		case <-timer.C:
			closeWith(conn, closeTimeout, "timed out waiting for evaluation")
			return
		}
	}

	if err := conn.WriteJSON(current); err != nil {
		logger.Warn().Err(err).Uint("submission_id", id).Msg("failed to write submission status")
		return
	}
	closeWith(conn, websocket.CloseNormalClosure, current.Status)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (h *CodingSubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrCodingSubmissionNotFound),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrInterviewSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, language.ErrUnsupportedLanguage):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "language not supported", fiber.Map{"supported": language.All()})
	case errors.Is(err, service.ErrEmptyCode):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped), errors.Is(err, worker.ErrNotAccepted):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "evaluation capacity exhausted, retry later")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
