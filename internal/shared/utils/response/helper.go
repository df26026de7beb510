package response

import (
	"boxoffice/internal/shared/apperror"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError maps an application error to its HTTP status and error envelope.
// Internal errors never leak their cause to the caller.
func RespondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	code := apperror.HTTPStatus(kind)

	message := err.Error()
	if kind == apperror.KindInternal {
		message = "Internal server error"
	}

	body := gin.H{"kind": kind}
	if details := apperror.DetailsOf(err); len(details) > 0 {
		body["details"] = details
	}
	RespondJSON(c, "error", code, message, nil, body)
}
