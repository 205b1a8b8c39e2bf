package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Middleware records converse_requests_total and
// converse_request_duration_seconds for every request, labelled by the
// matched route pattern so path parameters do not explode cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		} else if c.Path() == "/" {
			route = "/"
		}

		RequestsTotal.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		return err
	}
}
