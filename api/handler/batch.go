package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/internal/service"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// BatchHandler 批量执行处理器
type BatchHandler struct {
	batchService *service.BatchService
}

// NewBatchHandler 创建批量执行处理器
func NewBatchHandler(batchService *service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// DeviceRequest 请求中的一台设备
type DeviceRequest struct {
	IP       string `json:"ip" binding:"required"`
	Port     int    `json:"port"`
	User     string `json:"user" binding:"required"`
	Password string `json:"password"`
	Vendor   string `json:"vendor"`
	KeyFile  string `json:"key_file"`
}

// BatchRequest 批量执行请求
type BatchRequest struct {
	Devices  []DeviceRequest `json:"devices" binding:"required,min=1,dive"`
	Commands []string        `json:"commands" binding:"required,min=1"`
}

// Health 健康检查；进程收到中断信号后返回 503
func (h *BatchHandler) Health(c *gin.Context) {
	stats := h.batchService.Stats()
	if interrupted, _ := stats["interrupted"].(bool); interrupted {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "SHUTTING_DOWN",
			Message: "service is shutting down",
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "ok",
		Data:    stats,
	})
}

// RunBatch 同步执行一批设备并返回汇总报告
// @Summary 批量执行只读命令
// @Tags batch
// @Accept json
// @Produce json
// @Param request body BatchRequest true "设备与命令"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/batch [post]
func (h *BatchHandler) RunBatch(c *gin.Context) {
	var request BatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Warnf("Invalid batch request: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "invalid request: " + err.Error(),
		})
		return
	}

	devices := make([]model.Device, 0, len(request.Devices))
	for _, d := range request.Devices {
		if d.Password == "" && d.KeyFile == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_FAILED",
				Message: d.IP + ": password or key_file is required",
			})
			return
		}
		devices = append(devices, model.Device{
			Host:     strings.TrimSpace(d.IP),
			Port:     d.Port,
			Username: d.User,
			Password: d.Password,
			Vendor:   strings.ToLower(strings.TrimSpace(d.Vendor)),
			KeyFile:  d.KeyFile,
		})
	}
	commands := make([]string, 0, len(request.Commands))
	for _, cmd := range request.Commands {
		if cmd = strings.TrimSpace(cmd); cmd != "" {
			commands = append(commands, cmd)
		}
	}
	if len(commands) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: "commands must contain at least one non-blank line",
		})
		return
	}

	out, err := h.batchService.Execute(c.Request.Context(), devices, commands, nil)
	if err != nil && out == nil {
		logger.Errorf("Batch execution failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "EXECUTION_FAILED",
			Message: err.Error(),
		})
		return
	}
	message := "completed"
	if err != nil {
		// 报告已生成，仅文件写入失败
		message = err.Error()
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: message,
		Data:    out,
	})
}
