package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
)

type taskApi struct {
	svc      task.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerTaskAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc task.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := taskApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	// professor portal
	pg := g.Group("/professor/tasks", jwt, professorMiddleware())
	pg.POST("", api.create)
	pg.GET("", api.queryOwn)
	pg.GET("/:id", api.retrieveOwn)
	pg.PUT("/:id", api.update)
	pg.DELETE("/:id", api.destroy)

	// student portal
	sg := g.Group("/student/tasks", jwt, studentMiddleware())
	sg.GET("", api.queryEnrolled)
	sg.GET("/:id", api.retrieveEnrolled)
}

// Handlers

func (api *taskApi) create(ctx echo.Context) error {
	var data task.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	t, err := api.svc.Create(ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) queryOwn(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(task.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []task.Task{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tasks, err := api.svc.QueryOwn(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying own tasks")
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) queryEnrolled(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(task.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []task.Task{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tasks, err := api.svc.QueryEnrolled(ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying enrolled tasks")
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) retrieveOwn(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.GetOwn(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting own task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) retrieveEnrolled(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.GetEnrolled(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrolled task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) update(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.GetOwn(ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting own task")
	}

	var data task.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err := data.Validate(t, api.validate, api.svc); err != nil {
		return err
	}

	t, err = api.svc.Update(ctxUsr, t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}
