package http

import "github.com/gin-gonic/gin"

// RegisterAuth mounts the sign-up and session routes. limit guards the
// unauthenticated endpoints that send email or check passwords.
func (h *Handler) RegisterAuth(rg *gin.RouterGroup, requireAuth, limit gin.HandlerFunc) {
	rg.POST("/register", limit, h.RegisterUser)
	rg.POST("/verify-otp", limit, h.VerifyOTP)
	rg.POST("/resend-otp", limit, h.ResendOTP)
	rg.POST("/login", limit, h.Login)
	rg.POST("/forgot-password", limit, h.ForgotPassword)
	rg.POST("/reset-password", limit, h.ResetPassword)

	rg.GET("/me", requireAuth, h.Me)
	rg.POST("/change-password", requireAuth, h.ChangePassword)
}

// RegisterUsers mounts user administration on an authenticated group.
func (h *Handler) RegisterUsers(rg *gin.RouterGroup) {
	rg.GET("", h.ListUsers)
	rg.GET("/stats", h.Stats)
	rg.GET("/:id", h.GetUser)
	rg.PATCH("/:id", h.UpdateUser)
	rg.DELETE("/:id", h.DeleteUser)
	rg.POST("/:id/approve", h.ApproveUser)
	rg.POST("/:id/decline", h.DeclineUser)
	rg.POST("/:id/block", h.BlockUser)
	rg.POST("/:id/unblock", h.UnblockUser)
}
