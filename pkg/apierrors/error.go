package apierrors

import (
	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/pkg/translator"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GetTransErrorMsg retrieves the translated message, falling back to the key.
func GetTransErrorMsg(msgKey, lang string) string {
	return translator.Localize(msgKey, lang, nil)
}

// Lang returns the language recorded on the request by the language middleware.
func Lang(c *gin.Context) string {
	if v := c.GetString(translator.LangKey); v != "" {
		return v
	}
	if v := c.GetHeader("Accept-Language"); v != "" {
		return v
	}
	return translator.LanguageEn
}

// Success writes a successful envelope.
func Success(c *gin.Context, status int, msgKey string, data any) {
	c.JSON(status, Response{
		Success: true,
		Message: GetTransErrorMsg(msgKey, Lang(c)),
		Data:    data,
	})
}

// Fail writes a failed envelope. detail is optional machine-facing context.
func Fail(c *gin.Context, status int, msgKey, detail string) {
	c.JSON(status, Response{
		Success: false,
		Message: GetTransErrorMsg(msgKey, Lang(c)),
		Error:   detail,
	})
}

// Abort is Fail for middleware: it stops the handler chain.
func Abort(c *gin.Context, status int, msgKey, detail string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Message: GetTransErrorMsg(msgKey, Lang(c)),
		Error:   detail,
	})
}
