package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"github.com/wfunc/echechess/internal/api/docs"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/middleware"
)

// registerOpenAPIRoutes 提供 /openapi 文档
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.json", serveOpenAPI)
}

func serveOpenAPI(c *gin.Context) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		middleware.Abort(c, errors.Wrap(err, errors.ErrNotFound, "接口文档未注册"))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}
