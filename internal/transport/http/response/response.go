package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeUnsupportedType    = 40003
	CodeUnreadableDocument = 40004
	CodeNoContent          = 40005
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeTooLarge           = 41300
	CodeInternalServer     = 50000
	CodeStoreUnavailable   = 50001
	CodeCompletionFailed   = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Fail writes an error envelope that still carries a payload, such as the
// per-file skip list of a rejected upload.
func Fail(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
