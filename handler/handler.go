package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/constant"
	"github.com/garystafford/product-video-generator-app/dto"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/pkg/apperr"
	"github.com/garystafford/product-video-generator-app/repository"
	"github.com/garystafford/product-video-generator-app/service"
)

type ServiceDependencies struct {
	Orchestrator service.Orchestrator
	Repo         repository.Repository
	KeyframesDir string
}

// GenerationHandler consumes a generation request from the queue and feeds
// it through the same submission path as the HTTP layer.
func GenerationHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var req dto.GenerationMessage
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal generation message")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("product", req.ProductName).Msg("received generation request from queue")

	job, err := deps.Orchestrator.SubmitJob(ctx, dto.GenerationRequest{
		ProductName: req.ProductName,
		Prompt:      req.Prompt,
		S3Bucket:    req.S3Bucket,
		Settings:    req.Settings,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("job_id", job.ID).Msg("generation job started from queue")
	return nil
}

// Handler exposes the HTTP boundary: keyframe upload, job submission,
// status polling, and the video catalog.
type Handler struct {
	deps ServiceDependencies
}

func New(deps ServiceDependencies) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/keyframes/upload", h.uploadKeyframes)
	api.GET("/keyframes/list", h.listKeyframes)
	api.GET("/keyframes/:product_name/:frame_type", h.getKeyframe)

	api.POST("/videos/generate", h.generateVideo)
	api.GET("/jobs", h.listJobs)
	api.GET("/jobs/:job_id", h.getJob)

	api.GET("/videos", h.listVideos)
	api.GET("/videos/:video_id", h.getVideo)
	api.GET("/videos/download/:video_id", h.downloadVideo)
	api.DELETE("/videos/:video_id", h.deleteVideo)

	api.GET("/config/options", h.configOptions)
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

func (h *Handler) uploadKeyframes(c *gin.Context) {
	productName := c.PostForm("product_name")
	if productName == "" {
		abortWithError(c, apperr.New(apperr.CodeValidation, "product_name is required"))
		return
	}

	startFile, err := c.FormFile("start_frame")
	if err != nil {
		abortWithError(c, apperr.New(apperr.CodeValidation, "start_frame is required"))
		return
	}

	startPath, err := h.saveKeyframe(c, startFile)
	if err != nil {
		abortWithError(c, err)
		return
	}

	endPath := ""
	if endFile, err := c.FormFile("end_frame"); err == nil {
		endPath, err = h.saveKeyframe(c, endFile)
		if err != nil {
			abortWithError(c, err)
			return
		}
	}

	kf := entities.Keyframe{
		ProductName: productName,
		StartFrame:  startPath,
		EndFrame:    endPath,
		UploadedAt:  time.Now(),
	}
	if err := h.deps.Repo.PutKeyframes(kf); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"product_name": productName,
		"start_frame":  startPath,
		"end_frame":    endPath,
	})
}

func (h *Handler) saveKeyframe(c *gin.Context, file *multipart.FileHeader) (string, error) {
	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return "", apperr.Newf(apperr.CodeValidation, "invalid frame type: %s", contentType)
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	dest := filepath.Join(h.deps.KeyframesDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		return "", apperr.Wrap(err, apperr.CodeStorage, "failed to save keyframe")
	}
	return dest, nil
}

func (h *Handler) listKeyframes(c *gin.Context) {
	keyframes := h.deps.Repo.ListKeyframes()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"products": keyframes,
		"count":    len(keyframes),
	})
}

func (h *Handler) getKeyframe(c *gin.Context) {
	frameType := c.Param("frame_type")
	if frameType != "start" && frameType != "end" {
		abortWithError(c, apperr.New(apperr.CodeValidation, "invalid frame type, use 'start' or 'end'"))
		return
	}

	kf, err := h.deps.Repo.GetKeyframes(c.Param("product_name"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	path := kf.StartFrame
	if frameType == "end" {
		path = kf.EndFrame
	}
	if path == "" {
		abortWithError(c, apperr.Newf(apperr.CodeNotFound, "no %s frame found for product", frameType))
		return
	}
	if _, err := os.Stat(path); err != nil {
		abortWithError(c, apperr.Newf(apperr.CodeNotFound, "keyframe file not found: %s", path))
		return
	}
	c.File(path)
}

func (h *Handler) generateVideo(c *gin.Context) {
	var req dto.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	job, err := h.deps.Orchestrator.SubmitJob(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job_id":  job.ID,
		"message": "Video generation started",
	})
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.deps.Repo.GetJob(c.Param("job_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(job))
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs := h.deps.Repo.ListJobs()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	out := make([]dto.JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toStatusResponse(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

func (h *Handler) listVideos(c *gin.Context) {
	videos := h.deps.Repo.ListVideos()
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *Handler) getVideo(c *gin.Context) {
	video, err := h.deps.Repo.GetVideo(c.Param("video_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

func (h *Handler) downloadVideo(c *gin.Context) {
	video, err := h.deps.Repo.GetVideo(c.Param("video_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	path := video.FinalPath
	name := fmt.Sprintf("%s_final.mp4", video.ProductName)
	if strings.EqualFold(c.Query("original"), "true") {
		path = video.OriginalPath
		name = fmt.Sprintf("%s.mp4", video.ProductName)
	}

	if _, err := os.Stat(path); err != nil {
		abortWithError(c, apperr.New(apperr.CodeNotFound, "video file not found"))
		return
	}
	c.FileAttachment(path, name)
}

func (h *Handler) deleteVideo(c *gin.Context) {
	if err := h.deps.Repo.DeleteVideo(c.Param("video_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) configOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"aspect_ratios": constant.AspectRatios,
		"durations":     constant.Durations,
		"resolutions":   constant.Resolutions,
		"regions":       constant.Regions,
	})
}

func toStatusResponse(job entities.Job) dto.JobStatusResponse {
	resp := dto.JobStatusResponse{
		JobID:       job.ID,
		ProductName: job.ProductName,
		Status:      job.Status.String(),
		Progress:    job.Progress,
		Message:     job.Message,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
		Error:       job.Error,
	}
	if job.Status == constant.JobStatusCompleted && job.VideoID != "" {
		resp.VideoURL = "/api/videos/download/" + job.VideoID
	}
	return resp
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}
