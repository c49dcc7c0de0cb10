package uploads

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/api/util"
	"github.com/kvistgaard/arkive/internal/upload"
	"github.com/labstack/echo/v4"
)

type (
	// StartUploadRequest is the JSON body accepted when beginning a new
	// upload session.
	StartUploadRequest struct {
		SourcePath  string `json:"source_path"`
		ContentType string `json:"content_type"`
		Category    string `json:"category"`
	}

	Service interface {
		StartUpload(upload.Request) (*upload.Session, error)
		Session(uuid.UUID) *upload.Session
		AllSessions() []*upload.Session
		CancelUpload(uuid.UUID) error
	}

	// Controller defines the routes for upload session management and
	// holds the reference to the coordinator servicing them.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

// SetRoutes accepts the Echo group for the upload endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.start)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.GET("/:id/progress/", controller.progress)
	eg.DELETE("/:id/", controller.cancel)
}

// start validates the request body and begins a new upload session,
// returning its DTO. Validation failures are client errors; the
// transfer itself proceeds in the background.
func (controller *Controller) start(ec echo.Context) error {
	var request StartUploadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	}

	session, err := controller.service.StartUpload(upload.Request{
		SourcePath:  request.SourcePath,
		ContentType: request.ContentType,
		Category:    request.Category,
	})
	if err != nil {
		var validationErr *upload.ValidationError
		if errors.As(err, &validationErr) {
			return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusCreated, NewDto(session))
}

// list returns all known upload sessions, including completed and
// failed ones.
func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, util.ApplyConversion(controller.service.AllSessions(), NewDto))
}

// get uses the 'id' path param from the context to retrieve the upload
// session. If found, a DTO representing the session is returned.
func (controller *Controller) get(ec echo.Context) error {
	session, err := controller.lookupSession(ec)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, NewDto(session))
}

// progress returns only the transfer progress snapshot for the session,
// a lighter payload suited to frequent polling.
func (controller *Controller) progress(ec echo.Context) error {
	session, err := controller.lookupSession(ec)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, NewProgressDto(session.Progress()))
}

// cancel requests cooperative cancellation of the session. Cancelling a
// session that already reached a terminal state is a no-op.
func (controller *Controller) cancel(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Upload session ID is not a valid UUID")
	}

	if err := controller.service.CancelUpload(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) lookupSession(ec echo.Context) (*upload.Session, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Upload session ID is not a valid UUID")
	}

	session := controller.service.Session(id)
	if session == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound)
	}

	return session, nil
}
