package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/result"
	"github.com/trezcool/elimu/core/user"
)

type resultApi struct {
	svc      result.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerResultAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc result.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := resultApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	// student portal
	sag := g.Group("/student/answers", jwt, studentMiddleware())
	sag.POST("", api.createAnswer)
	sag.GET("", api.queryOwnAnswers)
	sag.GET("/:id", api.retrieveOwnAnswer)
	sag.PUT("/:id", api.updateAnswer)
	sag.PUT("/:id/attachment", api.attachFile)

	srg := g.Group("/student/results", jwt, studentMiddleware())
	srg.POST("", api.submit)
	srg.GET("", api.queryOwnResults)
	srg.GET("/:id", api.retrieveOwnResult)

	// professor portal
	pag := g.Group("/professor/answers", jwt, professorMiddleware())
	pag.GET("", api.queryCourseAnswers)
	pag.GET("/:id", api.retrieveCourseAnswer)
	pag.PUT("/:id/grade", api.gradeAnswer)

	prg := g.Group("/professor/results", jwt, professorMiddleware())
	prg.GET("", api.queryCourseResults)
	prg.GET("/:id", api.retrieveCourseResult)
	prg.PUT("/:id/grade", api.gradeResult)
}

// Answer handlers

func (api *resultApi) createAnswer(ctx echo.Context) error {
	var data result.NewAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnswer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ans, err := api.svc.CreateAnswer(ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating answer")
	}
	return ctx.JSON(http.StatusCreated, ans)
}

func (api *resultApi) queryOwnAnswers(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(result.AnswerQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []result.Answer{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	answers, err := api.svc.QueryOwnAnswers(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying own answers")
	}
	if answers == nil {
		answers = []result.Answer{}
	}
	return ctx.JSON(http.StatusOK, answers)
}

func (api *resultApi) queryCourseAnswers(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(result.AnswerQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []result.Answer{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	answers, err := api.svc.QueryCourseAnswers(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying course answers")
	}
	if answers == nil {
		answers = []result.Answer{}
	}
	return ctx.JSON(http.StatusOK, answers)
}

func (api *resultApi) retrieveOwnAnswer(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ans, err := api.svc.GetOwnAnswer(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting own answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *resultApi) retrieveCourseAnswer(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ans, err := api.svc.GetCourseAnswer(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *resultApi) updateAnswer(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data result.UpdateAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnswer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ans, err := api.svc.UpdateAnswer(ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *resultApi) attachFile(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	fileHdr, err := ctx.FormFile("attachment")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "attachment file is required")
	}
	src, err := fileHdr.Open()
	if err != nil {
		return errors.Wrap(err, "opening attachment")
	}
	defer func() { _ = src.Close() }()

	ans, err := api.svc.AttachFile(ctxUsr, ctx.Param("id"), fileHdr.Filename, src)
	if err != nil {
		return errors.Wrap(err, "attaching file")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *resultApi) gradeAnswer(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data result.GradeAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeAnswer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ans, err := api.svc.GradeAnswer(ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

// Result handlers

func (api *resultApi) submit(ctx echo.Context) error {
	var data result.NewResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResult")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.Submit(ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "submitting task for review")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *resultApi) queryOwnResults(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(result.ResultQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []result.Result{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	results, err := api.svc.QueryOwnResults(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying own results")
	}
	if results == nil {
		results = []result.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *resultApi) queryCourseResults(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(result.ResultQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []result.Result{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	results, err := api.svc.QueryCourseResults(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying course results")
	}
	if results == nil {
		results = []result.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *resultApi) retrieveOwnResult(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.GetOwnResult(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting own result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resultApi) retrieveCourseResult(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.GetCourseResult(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resultApi) gradeResult(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data result.GradeResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeResult")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.GradeResult(ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading result")
	}
	return ctx.JSON(http.StatusOK, res)
}
