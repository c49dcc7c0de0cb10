package api

import (
	"context"
	"sync"

	"github.com/kvistgaard/arkive/internal/api/medias"
	"github.com/kvistgaard/arkive/internal/api/uploads"
	"github.com/kvistgaard/arkive/internal/http/websocket"
	"github.com/kvistgaard/arkive/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes Arkive exposes and to manage
	// ongoing web socket connections and the events broadcast over them.
	RestGateway struct {
		*broadcaster
		config           *RestConfig
		ec               *echo.Echo
		socket           *websocket.SocketHub
		uploadController controller
		mediaController  controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all
// the routes defined by the various controllers. Each controller
// requires access to the service backing its resources, provided
// as arguments.
func NewRestGateway(
	config *RestConfig,
	uploadService uploads.Service,
	mediaService medias.Service,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.NewSocketHub()
	newSocketGateway(uploadService, mediaService).bind(socket)

	gateway := &RestGateway{
		broadcaster:      newBroadcaster(socket, uploadService, mediaService),
		config:           config,
		ec:               ec,
		socket:           socket,
		uploadController: uploads.New(uploadService),
		mediaController:  medias.New(mediaService),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/arkive/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	uploadGroup := ec.Group("/api/arkive/v1/uploads")
	gateway.uploadController.SetRoutes(uploadGroup)

	mediaGroup := ec.Group("/api/arkive/v1/media")
	gateway.mediaController.SetRoutes(mediaGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
