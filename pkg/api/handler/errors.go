package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dagflow/pkg/api/dto"
	"github.com/LENAX/dagflow/pkg/core/instance"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// writeError 将领域错误映射为HTTP状态码
// 错误分类本身携带了可重试性语义，这里只做翻译不吞细节
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, instance.ErrNotFound),
		errors.Is(err, instance.ErrTaskNotFound),
		errors.Is(err, instance.ErrNotMappedTask):
		status = http.StatusNotFound
	case errors.Is(err, instance.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, state.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, instance.ErrTooManyAffectedRows):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, dto.NewErrorResponse(status, err.Error()))
}
