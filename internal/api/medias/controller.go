package medias

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/api/util"
	"github.com/kvistgaard/arkive/internal/ingest"
	"github.com/kvistgaard/arkive/internal/media"
	"github.com/labstack/echo/v4"
)

type (
	// AssignRequest is the JSON body accepted when pinning a record to a
	// specific catalog entry.
	AssignRequest struct {
		ExternalID string `json:"external_id"`
	}

	Service interface {
		GetRecord(uuid.UUID) (*media.MediaRecord, error)
		ListRecords(...media.RecordStatus) ([]*media.MediaRecord, error)
		AutoResolve(context.Context, uuid.UUID) error
		ManualAssign(context.Context, uuid.UUID, string) (*media.MediaRecord, error)
	}

	// Controller defines the routes for media record querying and
	// resolution, backed by the ingest service.
	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

// SetRoutes accepts the Echo group for the media record endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.POST("/:id/resolve/", controller.resolve)
	eg.POST("/:id/assign/", controller.assign)
}

// list returns media records - represented as DTOs - optionally filtered
// by the comma-separated 'status' query parameter. Records are returned
// newest first.
func (controller *Controller) list(ec echo.Context) error {
	statuses, err := parseStatusFilter(ec.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	records, err := controller.service.ListRecords(statuses...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, util.ApplyConversion(records, NewDto))
}

// get uses the 'id' path param from the context and retrieves the record
// from the underlying store. If found, a DTO representing it is returned.
func (controller *Controller) get(ec echo.Context) error {
	id, err := parseRecordID(ec)
	if err != nil {
		return err
	}

	record, err := controller.service.GetRecord(id)
	if err != nil {
		return recordError(err)
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

// resolve triggers automatic catalog resolution for the record and
// returns its state afterwards. A record that has been manually assigned
// refuses automatic resolution with a conflict.
func (controller *Controller) resolve(ec echo.Context) error {
	id, err := parseRecordID(ec)
	if err != nil {
		return err
	}

	if err := controller.service.AutoResolve(ec.Request().Context(), id); err != nil {
		if errors.Is(err, ingest.ErrManuallyAssigned) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		if errors.Is(err, media.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		// Resolution failures are recorded on the record itself; fall
		// through so the client sees the ERROR status.
	}

	record, err := controller.service.GetRecord(id)
	if err != nil {
		return recordError(err)
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

// assign pins the record to the catalog entry named in the request body,
// moving it to the manually-assigned state regardless of confidence.
func (controller *Controller) assign(ec echo.Context) error {
	id, err := parseRecordID(ec)
	if err != nil {
		return err
	}

	var request AssignRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("JSON body illegal: %v", err))
	} else if request.ExternalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body missing mandatory 'external_id' field")
	}

	record, err := controller.service.ManualAssign(ec.Request().Context(), id, request.ExternalID)
	if err != nil {
		if errors.Is(err, media.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

func parseRecordID(ec echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Media record ID is not a valid UUID")
	}

	return id, nil
}

func parseStatusFilter(param string) ([]media.RecordStatus, error) {
	if param == "" {
		return nil, nil
	}

	statuses := make([]media.RecordStatus, 0)
	for _, raw := range strings.Split(param, ",") {
		status := media.RecordStatus(strings.ToUpper(strings.TrimSpace(raw)))
		switch status {
		case media.PENDING, media.MATCHED, media.MANUAL, media.ERROR:
			statuses = append(statuses, status)
		default:
			return nil, fmt.Errorf("unknown record status '%s'", raw)
		}
	}

	return statuses, nil
}

func recordError(err error) error {
	if errors.Is(err, media.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
