package http

import "github.com/gin-gonic/gin"

// Register mounts the project, board, column, task and comment routes on an
// authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	projects := rg.Group("/projects")
	projects.GET("", h.ListProjects)
	projects.POST("", h.CreateProject)
	projects.GET("/:id", h.GetProject)
	projects.PATCH("/:id", h.UpdateProject)
	projects.DELETE("/:id", h.DeleteProject)
	projects.POST("/:id/members", h.AddProjectMember)
	projects.DELETE("/:id/members/:userId", h.RemoveProjectMember)
	projects.GET("/:id/boards", h.ListBoards)
	projects.POST("/:id/boards", h.CreateBoard)

	boards := rg.Group("/boards")
	boards.GET("/:id", h.GetBoard)
	boards.PATCH("/:id", h.UpdateBoard)
	boards.DELETE("/:id", h.DeleteBoard)
	boards.POST("/:id/archive", h.ArchiveBoard)
	boards.POST("/:id/unarchive", h.UnarchiveBoard)
	boards.POST("/:id/members", h.AddBoardMember)
	boards.DELETE("/:id/members/:userId", h.RemoveBoardMember)
	boards.GET("/:id/activity", h.BoardActivity)
	boards.GET("/:id/events", h.BoardEvents)
	boards.POST("/:id/columns", h.CreateColumn)
	boards.PUT("/:id/columns/order", h.ReorderColumns)

	columns := rg.Group("/columns")
	columns.PATCH("/:id", h.UpdateColumn)
	columns.DELETE("/:id", h.DeleteColumn)
	columns.GET("/:id/tasks", h.ListColumnTasks)
	columns.POST("/:id/tasks", h.CreateTask)

	tasks := rg.Group("/tasks")
	tasks.GET("/:id", h.GetTask)
	tasks.PATCH("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)
	tasks.POST("/:id/move", h.MoveTask)
	tasks.POST("/:id/assign", h.AssignTask)
	tasks.POST("/:id/unassign", h.UnassignTask)
	tasks.POST("/:id/archive", h.ArchiveTask)
	tasks.GET("/:id/comments", h.ListComments)
	tasks.POST("/:id/comments", h.AddComment)
	tasks.GET("/:id/activity", h.TaskActivity)

	rg.DELETE("/comments/:id", h.DeleteComment)
}
