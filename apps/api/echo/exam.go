package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kazilabs/mtihani/core/exam"
)

type examApi struct {
	svc *exam.Service
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *exam.Service) {
	api := examApi{svc: svc}

	eg := g.Group("/exams", jwt)

	// teacher portal
	tg := eg.Group("/:id", teacherMiddleware())
	tg.GET("", api.retrieve)
	tg.POST("/assignment", api.generateAssignment)
	tg.POST("/papers", api.bindStudentPapers)
	tg.DELETE("/assignment", api.resetAssignment)
}

// Handlers

func (api *examApi) retrieve(ctx echo.Context) error {
	ex, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (api *examApi) generateAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ex, err := api.svc.GenerateAssignment(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "generating set assignment")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *examApi) bindStudentPapers(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ex, err := api.svc.BindStudentPapers(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "binding student papers")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *examApi) resetAssignment(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ex, err := api.svc.ResetAssignment(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "resetting set assignment")
	}
	return ctx.JSON(http.StatusOK, ex)
}
