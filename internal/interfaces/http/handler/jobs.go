package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/logger"
	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/dto"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
)

// JobQueue accepts jobs and reports their state
type JobQueue interface {
	Submit(job *scheduler.Job) (scheduler.Job, error)
	Get(id uuid.UUID) (scheduler.Job, error)
	List() []scheduler.Job
}

// MigrationCatalog answers read-only questions about the migration
type MigrationCatalog interface {
	CheckKind(kind string) error
	Plan() ([]migrationapp.PlanStep, error)
	Logs(ctx context.Context, filter migration.OutcomeFilter) ([]migration.Outcome, error)
}

// defaultLogLimit caps log listings without an explicit limit
const defaultLogLimit = 200

// JobHandler serves the job trigger API
type JobHandler struct {
	BaseHandler
	jobs    JobQueue
	catalog MigrationCatalog
}

// NewJobHandler creates a JobHandler
func NewJobHandler(jobs JobQueue, catalog MigrationCatalog) *JobHandler {
	return &JobHandler{jobs: jobs, catalog: catalog}
}

// Cache godoc
// @ID           queueCacheJob
// @Summary      Refetch the source cache
// @Description  Queues a job that empties the WeClapp cache and fetches every configured doctype again
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Success      202 {object} dto.Response{data=dto.JobResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /jobs/cache [post]
func (h *JobHandler) Cache(c *gin.Context) {
	h.submit(c, scheduler.NewJob(scheduler.JobTypeCache, "", nil))
}

// Migrate queues a migration of one kind, or of every kind when no kind is given.
// @ID           queueMigrateJob
// @Summary      Migrate cached entities
// @Description  Queues a migration of one kind, optionally filtered by field values, or of every kind in dependency order
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.MigrateJobRequest false "Kind and filter"
// @Success      202 {object} dto.Response{data=dto.JobResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /jobs/migrate [post]
func (h *JobHandler) Migrate(c *gin.Context) {
	var req dto.MigrateJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	if req.Kind != "" {
		if err := h.catalog.CheckKind(req.Kind); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	h.submit(c, scheduler.NewJob(scheduler.JobTypeMigrate, req.Kind, req.Where))
}

// Clear queues the removal of every migrated document of a kind.
// @ID           queueClearJob
// @Summary      Clear migrated documents
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        kind path string true "Migration kind"
// @Success      202 {object} dto.Response{data=dto.JobResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /jobs/clear/{kind} [post]
func (h *JobHandler) Clear(c *gin.Context) {
	var req dto.ClearJobRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if err := h.catalog.CheckKind(req.Kind); err != nil {
		h.HandleError(c, err)
		return
	}
	h.submit(c, scheduler.NewJob(scheduler.JobTypeClear, req.Kind, nil))
}

func (h *JobHandler) submit(c *gin.Context, job *scheduler.Job) {
	queued, err := h.jobs.Submit(job)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("Job queued",
		zap.String("job_id", queued.ID.String()),
		zap.String("type", string(queued.Type)),
		zap.String("kind", queued.Kind),
		zap.String("subject", middleware.GetJWTSubject(c)),
	)
	h.Accepted(c, toJobResponse(queued))
}

// List godoc
// @ID           listJobs
// @Summary      List jobs
// @Description  Returns the known jobs, newest first
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.Response{data=[]dto.JobResponse,meta=dto.Meta}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	jobs := h.jobs.List()
	out := make([]dto.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	h.SuccessList(c, out, len(out))
}

// Get returns one job.
// @ID           getJob
// @Summary      Get a job
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.JobResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	var req dto.JobIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	job, err := h.jobs.Get(uuid.MustParse(req.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toJobResponse(job))
}

// Logs lists the migration log, newest first.
// @ID           listMigrationLogs
// @Summary      List the migration log
// @Tags         logs
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "Outcome status" Enums(Success, Error)
// @Param        limit  query int    false "Maximum entries" minimum(1) maximum(1000) default(200)
// @Success      200 {object} dto.Response{data=[]dto.LogEntryResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /logs [get]
func (h *JobHandler) Logs(c *gin.Context) {
	var req dto.LogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultLogLimit
	}
	outcomes, err := h.catalog.Logs(c.Request.Context(), migration.OutcomeFilter{
		Status: migration.OutcomeStatus(req.Status),
		Limit:  req.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.LogEntryResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, dto.LogEntryResponse{
			ID:        o.ID,
			Status:    string(o.Status),
			Message:   o.Message,
			Detail:    o.Detail,
			Timestamp: o.Timestamp,
		})
	}
	h.SuccessList(c, out, len(out))
}

// Plan godoc
// @ID           getMigrationPlan
// @Summary      Migration order
// @Description  Returns the kinds in the order a full migration runs them
// @Tags         logs
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.Response{data=[]migrationapp.PlanStep,meta=dto.Meta}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /plan [get]
func (h *JobHandler) Plan(c *gin.Context) {
	steps, err := h.catalog.Plan()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, steps, len(steps))
}

func toJobResponse(j scheduler.Job) dto.JobResponse {
	return dto.JobResponse{
		ID:          j.ID,
		Type:        string(j.Type),
		Kind:        j.Kind,
		Where:       j.Where,
		Status:      string(j.Status),
		Error:       j.Error,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
