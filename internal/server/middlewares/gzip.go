package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	// file content is served as stored
	excludedPathsRegexs = []string{
		`^/api/v1/files/[^/]+/content$`,
	}
	excludedPaths = []string{
		"/healthz",
	}
)

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedPathsRegexs(excludedPathsRegexs),
	)
}
