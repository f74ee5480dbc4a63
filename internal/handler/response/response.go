package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Aduersarius/polybet-sub009/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response with the given HTTP status
// 监控探针只看 HTTP 状态码，所以这里不固定返回 200
func Error(c *gin.Context, status int, err error, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	code, msg := errno.Decode(err)
	c.JSON(status, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}
