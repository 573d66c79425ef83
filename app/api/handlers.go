package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/jobqueue"
	"github.com/driftworks/dripfeed/app/pipeline"
	"github.com/driftworks/dripfeed/app/slots"
)

const dateLayout = "2006-01-02"

// stuckThreshold is how long an item may sit in processing before the
// operator API reports it as stuck.
const stuckThreshold = 2 * time.Hour

type Handler struct {
	configCache   *channel.ConfigCache
	channelRepo   database.ChannelRepository
	itemRepo      database.ItemRepository
	processedRepo database.ProcessedRepository
	keyRepo       database.KeyRepository
	allocator     *slots.Allocator
	gate          *pipeline.Gate
	jobs          *jobqueue.Client
	horizonDays   int
}

func NewHandler(configCache *channel.ConfigCache, channelRepo database.ChannelRepository,
	itemRepo database.ItemRepository, processedRepo database.ProcessedRepository,
	keyRepo database.KeyRepository, allocator *slots.Allocator, gate *pipeline.Gate,
	jobs *jobqueue.Client, horizonDays int) *Handler {
	return &Handler{
		configCache:   configCache,
		channelRepo:   channelRepo,
		itemRepo:      itemRepo,
		processedRepo: processedRepo,
		keyRepo:       keyRepo,
		allocator:     allocator,
		gate:          gate,
		jobs:          jobs,
		horizonDays:   horizonDays,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if channelCount, err := h.channelRepo.GetChannelCount(); err == nil {
		health["channels"] = channelCount
	}

	if summary, err := h.itemRepo.GetHealthSummary(); err == nil {
		health["items"] = map[string]int{
			"total":      summary.Total,
			"waiting":    summary.Waiting,
			"processing": summary.Processing,
			"completed":  summary.Completed,
			"failed":     summary.Failed,
		}
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListChannels(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	channels := make([]map[string]interface{}, 0, len(configs))

	for _, channelConfig := range configs {
		channelInfo := map[string]interface{}{
			"name":      channelConfig.Name,
			"feed_url":  channelConfig.FeedURL,
			"dest_code": channelConfig.DestCode,
			"title":     channelConfig.Title,
			"enabled":   channelConfig.Settings.Enabled,
			"max_items": channelConfig.Settings.MaxItems,
			"filters":   len(channelConfig.Filters),
		}

		if ch, err := h.channelRepo.GetChannel(channelConfig.Name); err == nil && ch != nil {
			channelInfo["last_checked_at"] = ch.LastCheckedAt
			channelInfo["updated_at"] = ch.UpdatedAt
		}

		if processedCount, err := h.processedRepo.GetProcessedCount(channelConfig.Name); err == nil {
			channelInfo["processed_count"] = processedCount
		}

		channels = append(channels, channelInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"channels": channels,
		"total":    len(channels),
	})
}

func (h *Handler) GetChannelDetails(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel name parameter"})
		return
	}

	channelConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Channel configuration not found", "channel", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel configuration not found"})
		return
	}

	details := map[string]interface{}{
		"name":       channelConfig.Name,
		"feed_url":   channelConfig.FeedURL,
		"dest_code":  channelConfig.DestCode,
		"title":      channelConfig.Title,
		"enabled":    channelConfig.Settings.Enabled,
		"max_items":  channelConfig.Settings.MaxItems,
		"has_prompt": channelConfig.Prompt != "",
		"filters":    channelConfig.Filters,
	}

	if ch, err := h.channelRepo.GetChannel(name); err == nil && ch != nil {
		details["last_checked_at"] = ch.LastCheckedAt
		details["registered_at"] = ch.CreatedAt
	}

	if processedCount, err := h.processedRepo.GetProcessedCount(name); err == nil {
		details["processed_count"] = processedCount
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) ListDueItems(c *gin.Context) {
	items, err := h.gate.Due(time.Now())
	if err != nil {
		slog.Error("Database error", "operation", "list_due", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"items": itemSummaries(items),
		"total": len(items),
	})
}

func (h *Handler) ListCompletedItems(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20)

	items, err := h.itemRepo.ListRecentlyCompleted(limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_completed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"items": itemSummaries(items),
		"total": len(items),
	})
}

func (h *Handler) ListStuckItems(c *gin.Context) {
	items, err := h.itemRepo.ListStuckProcessing(time.Now().Add(-stuckThreshold))
	if err != nil {
		slog.Error("Database error", "operation", "list_stuck", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"items":     itemSummaries(items),
		"total":     len(items),
		"threshold": stuckThreshold.String(),
	})
}

// RequeueItem puts a failed or stuck item back into waiting, scheduled for
// today so the next sweep picks it up.
func (h *Handler) RequeueItem(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing item id parameter"})
		return
	}

	today := time.Now().Format(dateLayout)
	if err := h.itemRepo.RequeueItem(id, today); err != nil {
		slog.Error("Failed to requeue item", "item_id", id, "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Item requeued", "item_id", id, "scheduled_for", today)
	c.JSON(http.StatusOK, gin.H{
		"id":            id,
		"status":        "waiting",
		"scheduled_for": today,
	})
}

func (h *Handler) ListSlots(c *gin.Context) {
	now := time.Now()
	from := c.DefaultQuery("from", now.Format(dateLayout))
	to := c.DefaultQuery("to", now.AddDate(0, 0, h.horizonDays).Format(dateLayout))
	destCode := c.Query("dest")

	slotList, err := h.allocator.List(from, to, destCode)
	if err != nil {
		slog.Error("Database error", "operation", "list_slots", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	results := make([]map[string]interface{}, 0, len(slotList))
	for _, slot := range slotList {
		results = append(results, map[string]interface{}{
			"date":      slot.Date,
			"dest_code": slot.DestCode,
			"index":     slot.Index,
			"item_id":   slot.ItemID,
			"job_id":    slot.JobID,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"slots": results,
		"from":  from,
		"to":    to,
		"total": len(results),
	})
}

// ForceSlot reserves an exact slot with no capacity check.
func (h *Handler) ForceSlot(c *gin.Context) {
	var request struct {
		DestCode string `json:"dest_code" binding:"required"`
		Date     string `json:"date" binding:"required"`
		Index    int    `json:"index" binding:"required"`
		ItemID   string `json:"item_id"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := time.Parse(dateLayout, request.Date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	if err := h.allocator.Force(request.DestCode, request.Date, request.Index, request.ItemID); err != nil {
		slog.Error("Failed to force slot", "date", request.Date, "dest_code", request.DestCode, "index", request.Index, "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"date":      request.Date,
		"dest_code": request.DestCode,
		"index":     request.Index,
		"item_id":   request.ItemID,
	})
}

// ReleaseSlot frees a slot and cancels its downstream job, if one was
// submitted.
func (h *Handler) ReleaseSlot(c *gin.Context) {
	date := c.Param("date")
	destCode := c.Param("dest")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	slot, err := h.allocator.Release(destCode, date, index)
	if err != nil {
		slog.Error("Failed to release slot", "date", date, "dest_code", destCode, "index", index, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if slot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Slot not occupied"})
		return
	}

	cancelled := false
	if slot.JobID != "" && h.jobs != nil {
		if err := h.jobs.Cancel(c.Request.Context(), slot.JobID); err != nil {
			slog.Error("Failed to cancel job for released slot", "job_id", slot.JobID, "error", err)
		} else {
			cancelled = true
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"date":          date,
		"dest_code":     destCode,
		"index":         index,
		"item_id":       slot.ItemID,
		"job_id":        slot.JobID,
		"job_cancelled": cancelled,
	})
}

func (h *Handler) GetJobStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing job id parameter"})
		return
	}

	status, err := h.jobs.Status(c.Request.Context(), id)
	if err != nil {
		slog.Error("Job status lookup failed", "job_id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) ListKeyUsage(c *gin.Context) {
	usage, err := h.keyRepo.AllUsage()
	if err != nil {
		slog.Error("Database error", "operation", "list_key_usage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	keys := make([]map[string]interface{}, 0, len(usage))
	for _, u := range usage {
		keys = append(keys, map[string]interface{}{
			"label":      u.Label,
			"used_count": u.UsedCount,
			"updated_at": u.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

func itemSummaries(items []database.DelayedItem) []map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		summary := map[string]interface{}{
			"id":            item.ID,
			"channel":       item.ChannelName,
			"video_id":      item.VideoID,
			"title":         item.Title,
			"published_at":  item.PublishedAt,
			"scheduled_for": item.ScheduledFor,
			"status":        string(item.Status),
		}
		if item.ErrorMessage != "" {
			summary["error"] = item.ErrorMessage
		}
		if item.JobID != "" {
			summary["job_id"] = item.JobID
		}
		if item.CompletedAt != nil {
			summary["completed_at"] = item.CompletedAt
		}
		results = append(results, summary)
	}
	return results
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
