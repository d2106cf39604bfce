package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// Fail 按错误类别渲染响应，内部错误只记录日志不暴露细节
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindFatal:
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	case apperr.KindUpstream:
		logger.Warn("%s %s upstream failure: %v", c.Request.Method, c.FullPath(), err)
	}
	ErrorResponse(c, apperr.HTTPStatus(kind), apperr.PublicMessage(err))
}

// bindJSON 解析请求体，失败时返回 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptionalJSON 解析可为空的请求体，分块传输时 ContentLength 为 -1 也会解析
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
