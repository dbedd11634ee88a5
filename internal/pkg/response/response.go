package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// ValidationFailed renders a field-level error set: fields maps each
// invalid field to its messages, base carries record-level problems
// that belong to no single field (e.g. an unreadable image).
func ValidationFailed(c *gin.Context, fields map[string][]string, base []string) {
	details := gin.H{}
	if len(fields) > 0 {
		details["fields"] = fields
	}
	if len(base) > 0 {
		details["base"] = base
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_FAILED",
			"message": "upload is invalid",
			"details": details,
		},
	})
}
