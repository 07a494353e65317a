package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicedoc/internal/ai"
	"voicedoc/internal/app"
	"voicedoc/internal/pkg/docextract"
	"voicedoc/internal/transport/http/middleware"
	"voicedoc/internal/transport/http/response"
	"voicedoc/internal/vectorstore"
)

const maxUploadSize = 20 << 20 // 20 MB per file

type RAGHandler struct {
	ragService *app.RAGService
}

type DeleteDocsRequest struct {
	Names []string `json:"names"`
}

type ChatRequest struct {
	Message         string   `json:"message"`
	SelectedSources []string `json:"selected_sources"`
	Temperature     *float64 `json:"temperature"`
}

func NewRAGHandler(ragService *app.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

func (h *RAGHandler) Upload(c *gin.Context) {
	namespace, ok := namespaceFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "expected multipart form with files")
		return
	}

	headers := form.File["files"]
	files := make([]app.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxUploadSize {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge,
				fmt.Sprintf("%s is too large (max %d MB)", fh.Filename, maxUploadSize>>20))
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
			return
		}
		files = append(files, app.UploadFile{Name: fh.Filename, Data: data})
	}

	result, err := h.ragService.Ingest(c.Request.Context(), namespace, files)
	if errors.Is(err, app.ErrNoExtractableContent) {
		response.Fail(c, http.StatusBadRequest, response.CodeNoContent, err.Error(), result)
		return
	}
	if err != nil {
		writeRAGError(c, err, "upload failed")
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) ListDocs(c *gin.Context) {
	namespace, ok := namespaceFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.ragService.ListDocuments(c.Request.Context(), namespace)
	if err != nil {
		writeRAGError(c, err, "list documents failed")
		return
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	response.OK(c, gin.H{
		"docs":      names,
		"documents": docs,
	})
}

func (h *RAGHandler) DeleteDocs(c *gin.Context) {
	namespace, ok := namespaceFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req DeleteDocsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.ragService.DeleteDocuments(c.Request.Context(), namespace, req.Names)
	if err != nil {
		writeRAGError(c, err, "delete documents failed")
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) ClearMemory(c *gin.Context) {
	namespace, ok := namespaceFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.ragService.ClearMemory(c.Request.Context(), namespace); err != nil {
		writeRAGError(c, err, "clear memory failed")
		return
	}
	response.OK(c, gin.H{"cleared": true})
}

func (h *RAGHandler) Chat(c *gin.Context) {
	namespace, ok := namespaceFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		UserID:          namespace,
		Message:         req.Message,
		SelectedSources: req.SelectedSources,
		Temperature:     req.Temperature,
	})
	if err != nil {
		writeRAGError(c, err, "chat failed")
		return
	}
	response.OK(c, result)
}

func writeRAGError(c *gin.Context, err error, fallback string) {
	var parseErr *docextract.ParseError
	var completionErr *ai.CompletionServiceError
	switch {
	case errors.Is(err, docextract.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedType, err.Error())
	case errors.As(err, &parseErr):
		response.Error(c, http.StatusBadRequest, response.CodeUnreadableDocument, err.Error())
	case errors.Is(err, app.ErrNoFiles),
		errors.Is(err, app.ErrNoDocumentNames),
		errors.Is(err, app.ErrEmptyQuery):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMissingUser):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, docextract.ErrCapabilityUnavailable),
		errors.Is(err, vectorstore.ErrStoreCapabilityMissing),
		errors.Is(err, vectorstore.ErrStoreOperationFailed):
		response.Error(c, http.StatusInternalServerError, response.CodeStoreUnavailable, err.Error())
	case errors.As(err, &completionErr):
		response.Error(c, http.StatusBadGateway, response.CodeCompletionFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func namespaceFromContext(c *gin.Context) (string, bool) {
	namespace := c.GetString(middleware.ContextNamespaceKey)
	return namespace, namespace != ""
}
