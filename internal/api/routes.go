package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumeadvisor/internal/ai"
	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/auth"
	"resumeadvisor/internal/composition"
	"resumeadvisor/internal/library"
	"resumeadvisor/internal/scrape"
)

// RegisterRoutes 注册 /api 下的全部业务路由。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	aiClient ai.Client,
	scraper *scrape.Scraper,
	logger *slog.Logger,
	aiRequestsPerDay int,
) {
	authHandler := NewAuthHandler(db, authService, redisClient, asynqClient, logger)
	userHandler := NewUserHandler(db)
	libraryHandler := NewLibraryHandler(library.NewStore(db))
	resumeHandler := NewResumeHandler(db, composition.NewEngine(db))
	jobHandler := NewJobHandler(db, scraper)
	coverLetterHandler := NewCoverLetterHandler(db)
	aiHandler := NewAIHandler(aiClient, redisClient, aiRequestsPerDay)
	authMiddleware := middleware.AuthMiddleware(authService)

	root := router.Group("/api")
	{
		authGroup := root.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/verify", authHandler.Verify)
		}

		userGroup := root.Group("/user")
		userGroup.Use(authMiddleware)
		{
			userGroup.GET("", userHandler.GetProfile)
			userGroup.PUT("", userHandler.UpdateProfile)
			userGroup.DELETE("", userHandler.DeleteAccount)
			userGroup.GET("/resumes", userHandler.ListResumes)
		}

		libraryGroup := root.Group("/library")
		libraryGroup.Use(authMiddleware)
		{
			libraryGroup.POST("/experiences", libraryHandler.CreateExperience)
			libraryGroup.GET("/experiences", libraryHandler.ListExperiences)
			libraryGroup.PUT("/experiences/:id", libraryHandler.UpdateExperience)
			libraryGroup.DELETE("/experiences/:id", libraryHandler.DeleteExperience)
			libraryGroup.POST("/experiences/:id/bullets", libraryHandler.AddExperienceBullet)
			libraryGroup.PUT("/experience-bullets/:id", libraryHandler.UpdateExperienceBullet)
			libraryGroup.DELETE("/experience-bullets/:id", libraryHandler.DeleteExperienceBullet)

			libraryGroup.POST("/education", libraryHandler.CreateEducation)
			libraryGroup.GET("/education", libraryHandler.ListEducation)
			libraryGroup.PUT("/education/:id", libraryHandler.UpdateEducation)
			libraryGroup.DELETE("/education/:id", libraryHandler.DeleteEducation)

			libraryGroup.POST("/projects", libraryHandler.CreateProject)
			libraryGroup.GET("/projects", libraryHandler.ListProjects)
			libraryGroup.PUT("/projects/:id", libraryHandler.UpdateProject)
			libraryGroup.DELETE("/projects/:id", libraryHandler.DeleteProject)
			libraryGroup.POST("/projects/:id/bullets", libraryHandler.AddProjectBullet)
			libraryGroup.DELETE("/project-bullets/:id", libraryHandler.DeleteProjectBullet)

			libraryGroup.POST("/skills", libraryHandler.CreateSkill)
			libraryGroup.GET("/skills", libraryHandler.ListSkills)
			libraryGroup.PUT("/skills/:id", libraryHandler.UpdateSkill)
			libraryGroup.DELETE("/skills/:id", libraryHandler.DeleteSkill)
			libraryGroup.POST("/skills/:id/tags", libraryHandler.TagSkill)
			libraryGroup.DELETE("/tags/:id", libraryHandler.UntagSkill)
		}

		resumeGroup := root.Group("/resumes")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
			resumeGroup.PUT("/:id/primary", resumeHandler.SetPrimary)

			resumeGroup.POST("/:id/sections", resumeHandler.AddSection)
			resumeGroup.POST("/:id/experiences", resumeHandler.AttachExperience)
			resumeGroup.POST("/:id/education", resumeHandler.AttachEducation)
			resumeGroup.POST("/:id/projects", resumeHandler.AttachProject)
			resumeGroup.POST("/:id/skills", resumeHandler.AttachSkill)

			resumeGroup.PUT("/:id/refs/:kind/:refId/position", resumeHandler.Reorder)
			resumeGroup.DELETE("/:id/refs/:kind/:refId", resumeHandler.Detach)
			resumeGroup.POST("/:id/refs/:kind/:refId/bullets", resumeHandler.SetBulletOverride)

			resumeGroup.GET("/:id/resolve", resumeHandler.Resolve)
			resumeGroup.PUT("/:id/summary", resumeHandler.SetSummary)
			resumeGroup.PUT("/:id/theme", resumeHandler.SetTheme)
		}

		jobGroup := root.Group("/jobs")
		jobGroup.Use(authMiddleware)
		{
			jobGroup.POST("", jobHandler.CreateJob)
			jobGroup.GET("", jobHandler.ListJobs)
			jobGroup.GET("/search", jobHandler.SearchJobs)
			jobGroup.POST("/scrape", jobHandler.ScrapeJob)
			jobGroup.GET("/:id", jobHandler.GetJob)
			jobGroup.PUT("/:id", jobHandler.UpdateJob)
			jobGroup.DELETE("/:id", jobHandler.DeleteJob)
		}

		letterGroup := root.Group("/coverletters")
		letterGroup.Use(authMiddleware)
		{
			letterGroup.POST("", coverLetterHandler.CreateCoverLetter)
			letterGroup.GET("", coverLetterHandler.ListCoverLetters)
			letterGroup.GET("/:id", coverLetterHandler.GetCoverLetter)
			letterGroup.PUT("/:id", coverLetterHandler.UpdateCoverLetter)
			letterGroup.DELETE("/:id", coverLetterHandler.DeleteCoverLetter)
		}

		aiGroup := root.Group("/ai")
		aiGroup.Use(authMiddleware)
		{
			aiGroup.POST("/analyze-job", aiHandler.AnalyzeJob)
			aiGroup.POST("/generate-section", aiHandler.GenerateSection)
			aiGroup.POST("/keywords", aiHandler.Keywords)
		}
	}
}
