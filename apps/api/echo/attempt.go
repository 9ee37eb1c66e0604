package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/paper"
)

type attemptApi struct {
	svc      *attempt.Service
	resolver *paper.Resolver
	validate *validator.Validate
}

func registerAttemptAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *attempt.Service,
	resolver *paper.Resolver,
	validate *validator.Validate,
) {
	api := attemptApi{
		svc:      svc,
		resolver: resolver,
		validate: validate,
	}

	// student portal, keyed by exam
	eg := g.Group("/exams/:id", jwt, studentMiddleware())
	eg.GET("/eligibility", api.checkEligibility)
	eg.GET("/paper", api.resolvePaper)
	eg.POST("/attempts", api.start)
	eg.GET("/attempts", api.history)
	eg.GET("/attempts/active", api.retrieveActive)

	// student portal, keyed by attempt
	ag := g.Group("/attempts/:id", jwt, studentMiddleware())
	ag.POST("/submit", api.submit)
	ag.POST("/violations", api.recordViolation)
	ag.POST("/heartbeat", api.heartbeat)

	// admin portal
	g.GET("/attempts", api.listAll, jwt, adminMiddleware())
}

// Handlers

func (api *attemptApi) checkEligibility(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	elig, err := api.svc.CheckEligibility(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	return ctx.JSON(http.StatusOK, elig)
}

func (api *attemptApi) resolvePaper(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	pap, err := api.resolver.Resolve(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "resolving paper")
	}
	return ctx.JSON(http.StatusOK, pap)
}

func (api *attemptApi) start(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.Start(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *attemptApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	atts, err := api.svc.History(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying attempt history")
	}
	if atts == nil {
		atts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *attemptApi) retrieveActive(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.GetActive(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting active attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	answers := make([]attempt.Answer, 0, len(data.Answers))
	for _, ans := range data.Answers {
		answers = append(answers, attempt.Answer{QuestionID: ans.QuestionID, Answer: ans.Answer})
	}

	att, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, ctx.Param("id"), answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) recordViolation(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ViolationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ViolationRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	att, err := api.svc.RecordViolation(ctx.Request().Context(), claims.Subject, ctx.Param("id"), attempt.ViolationType(data.Type))
	if err != nil {
		return errors.Wrap(err, "recording violation")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) heartbeat(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.Heartbeat(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording heartbeat")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) listAll(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	atts, err := api.svc.ListAll(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if atts == nil {
		atts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

type (
	SubmitRequest struct {
		Answers []AnswerPayload `json:"answers"`
	}

	AnswerPayload struct {
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}

	ViolationRequest struct {
		Type string `json:"type" validate:"required"`
	}
)

func (vr *ViolationRequest) Validate(validate *validator.Validate) error {
	vr.Type = core.CleanString(vr.Type, true)
	return validate.Struct(vr)
}
