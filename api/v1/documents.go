package v1

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"quality-portal/document-control-backend/internal/documents"
	"quality-portal/document-control-backend/internal/engine"
	"quality-portal/document-control-backend/internal/notifications"
	"quality-portal/document-control-backend/pkg/workflows"
)

// DocumentsAPI holds the workflow API dependencies.
type DocumentsAPI struct {
	Handler    *documents.Handler
	Engine     *engine.Engine
	Versions   *documents.VersionManager
	Repository documents.Repository
}

// SetupDocumentsAPI wires the repository, transition executor, version manager
// and HTTP handler together.
func SetupDocumentsAPI(repo documents.Repository, registry *workflows.Registry, dispatcher notifications.Dispatcher, logger *zap.Logger, engineCfg engine.Config) *DocumentsAPI {
	eng := engine.New(repo, registry, dispatcher, logger, engineCfg)
	versions := documents.NewVersionManager(repo, eng, logger)
	handler := documents.NewHandler(repo, eng, versions, logger)

	return &DocumentsAPI{
		Handler:    handler,
		Engine:     eng,
		Versions:   versions,
		Repository: repo,
	}
}

// RegisterDocumentRoutes registers the workflow routes on the router group.
func RegisterDocumentRoutes(router *gin.RouterGroup, api *DocumentsAPI) {
	api.Handler.RegisterRoutes(router)
}
