package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// ErrorHandler переводит ошибки, накопленные хендлерами через c.Error,
// в единый JSON ответ. AppError несёт свой HTTP статус и код, всё
// остальное маскируется как внутренняя ошибка, детали уходят в лог.
func ErrorHandler(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				log.WithError(err).WithFields(logrus.Fields{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"code":   appErr.Code,
				}).Error("request failed")
			}
			c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
				Error:     appErr.Message,
				Code:      string(appErr.Code),
				Details:   appErr.Details,
				Retryable: appErr.Retryable,
			})
			return
		}

		log.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("unhandled error")

		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "внутренняя ошибка сервера",
			Code:  string(apperror.ErrCodeInternal),
		})
	}
}
