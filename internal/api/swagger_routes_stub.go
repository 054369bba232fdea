//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes 非 swagger 构建不提供UI，文档仍可从 /openapi 读取
func registerSwaggerRoutes(engine *gin.Engine) {}
