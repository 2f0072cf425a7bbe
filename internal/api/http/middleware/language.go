package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/pkg/translator"
)

// LanguageMiddleware negotiates the response language from Accept-Language
// and records it for the envelope writers.
func LanguageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := translator.Match(c.GetHeader("Accept-Language"))
		c.Set(translator.LangKey, lang)
		c.Header("Content-Language", lang)
		c.Next()
	}
}
