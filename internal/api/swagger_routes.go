//go:build swagger

package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// registerSwaggerRoutes 挂载Swagger UI，文档数据从 /openapi 读取，
// 不依赖swag本地生成的docs包。仅 -tags swagger 构建时启用。
func registerSwaggerRoutes(engine *gin.Engine) {
	handler := ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL("/openapi"),
		ginSwagger.DocExpansion("none"),
	)
	engine.GET("/swagger/*any", handler)
}
