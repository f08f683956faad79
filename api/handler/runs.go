package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/netbatch/internal/database"
	"github.com/sshcollectorpro/netbatch/internal/model"
)

// RunStore 执行历史查询
type RunStore interface {
	ListRuns(limit, offset int) ([]model.Run, int64, error)
	GetRun(id string) (*model.Run, error)
}

// RunHandler 执行历史处理器；store 为 nil 表示未启用历史记录
type RunHandler struct {
	store RunStore
}

// NewRunHandler 创建执行历史处理器
func NewRunHandler(store RunStore) *RunHandler {
	return &RunHandler{store: store}
}

// ListRuns 分页列出执行记录
func (h *RunHandler) ListRuns(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, total, err := h.store.ListRuns(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "ok",
		Data:    gin.H{"total": total, "runs": runs},
	})
}

// GetRun 读取一次执行及设备明细
func (h *RunHandler) GetRun(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	run, err := h.store.GetRun(c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: run})
}

func (h *RunHandler) enabled(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "HISTORY_DISABLED",
			Message: "run history is disabled, set database.sqlite.path",
		})
		return false
	}
	return true
}
