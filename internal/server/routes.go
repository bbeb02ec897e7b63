package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/server/auth"
	authH "github.com/openmined/syncmirror/internal/server/handlers/auth"
	"github.com/openmined/syncmirror/internal/server/handlers/nodes"
	"github.com/openmined/syncmirror/internal/server/middlewares"
	"github.com/openmined/syncmirror/internal/version"
)

func SetupRoutes(store remote.Store, authSvc *auth.AuthService) http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	nodesH := nodes.New(store)
	tokensH := authH.New(authSvc)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	r.POST(httpstore.PathAuthRefresh, tokensH.Refresh)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.JWTAuth(authSvc))
	{
		v1.GET("/nodes", nodesH.List)
		v1.POST("/folders", nodesH.CreateFolder)
		v1.POST("/files", nodesH.CreateFile)
		v1.PUT("/files/:id", nodesH.UpdateFile)
		v1.GET("/files/:id", nodesH.GetFile)
		v1.GET("/files/:id/content", nodesH.Download)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, &httpstore.APIError{Code: httpstore.CodeNotFound, Message: "not found"})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, &httpstore.APIError{Code: httpstore.CodeInvalidRequest, Message: "method not allowed"})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
