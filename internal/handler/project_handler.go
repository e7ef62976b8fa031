package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/progress"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/service"
)

const defaultActivityLimit = 20

type ProjectHandler struct {
	svc    *service.ProjectService
	logger *zap.Logger
}

func NewProjectHandler(svc *service.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

// projectResponse is a project with its derived progress.
type projectResponse struct {
	*model.Project
	Progress progress.Progress `json:"progress"`
}

func present(p *model.Project) projectResponse {
	return projectResponse{Project: p, Progress: progress.Of(p)}
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var np model.NewProject
	if err := c.ShouldBindJSON(&np); err != nil {
		respondError(c, h.logger, "CreateProject", model.NewValidationError(err))
		return
	}
	p, err := h.svc.CreateProject(c.Request.Context(), np)
	if err != nil {
		respondError(c, h.logger, "CreateProject", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": present(p)})
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	filter := service.ListFilter{
		Status: model.Status(c.Query("status")),
		Query:  c.Query("q"),
	}
	projects, err := h.svc.ListProjects(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "ListProjects", err)
		return
	}
	out := make([]projectResponse, len(projects))
	for i, p := range projects {
		out[i] = present(p)
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "GetProject", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "DeleteProject", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) Progress(c *gin.Context) {
	prog, err := h.svc.ProgressOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Progress", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": prog})
}

func (h *ProjectHandler) Activity(c *gin.Context) {
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, "Activity", badRequest("limit", "must be an integer"))
			return
		}
		limit = n
	}
	feed, err := h.svc.Activity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, "Activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": feed})
}

// MarkActivityRead serves POST /projects/:id/activity/read.
func (h *ProjectHandler) MarkActivityRead(c *gin.Context) {
	if err := h.svc.MarkActivityRead(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "MarkActivityRead", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) AddParticipant(c *gin.Context) {
	var in model.NewParticipantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, "AddParticipant", model.NewValidationError(err))
		return
	}
	p, err := h.svc.AddParticipant(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "AddParticipant", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": present(p)})
}

func (h *ProjectHandler) RemoveParticipant(c *gin.Context) {
	p, err := h.svc.RemoveParticipant(c.Request.Context(), c.Param("id"), c.Param("participantID"))
	if err != nil {
		respondError(c, h.logger, "RemoveParticipant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}

func (h *ProjectHandler) AddMilestone(c *gin.Context) {
	var nm model.NewMilestone
	if err := c.ShouldBindJSON(&nm); err != nil {
		respondError(c, h.logger, "AddMilestone", model.NewValidationError(err))
		return
	}
	p, err := h.svc.AddMilestone(c.Request.Context(), c.Param("id"), nm)
	if err != nil {
		respondError(c, h.logger, "AddMilestone", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": present(p)})
}

func (h *ProjectHandler) CompleteMilestone(c *gin.Context) {
	p, err := h.svc.CompleteMilestone(c.Request.Context(), c.Param("id"), c.Param("milestoneID"))
	if err != nil {
		respondError(c, h.logger, "CompleteMilestone", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}

func (h *ProjectHandler) ReopenMilestone(c *gin.Context) {
	p, err := h.svc.ReopenMilestone(c.Request.Context(), c.Param("id"), c.Param("milestoneID"))
	if err != nil {
		respondError(c, h.logger, "ReopenMilestone", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}

func (h *ProjectHandler) CompleteProject(c *gin.Context) {
	p, err := h.svc.CompleteProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "CompleteProject", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}

func (h *ProjectHandler) AddProjectEvent(c *gin.Context) {
	var in model.NewProjectEventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.logger, "AddProjectEvent", model.NewValidationError(err))
		return
	}
	p, err := h.svc.AddProjectEvent(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "AddProjectEvent", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": present(p)})
}

func (h *ProjectHandler) RemoveProjectEvent(c *gin.Context) {
	p, err := h.svc.RemoveProjectEvent(c.Request.Context(), c.Param("id"), c.Param("eventID"))
	if err != nil {
		respondError(c, h.logger, "RemoveProjectEvent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": present(p)})
}
