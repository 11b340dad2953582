package errutil

import "net/http"

type CoreStatus string

const (
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusValidationFailed     CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusDataLoss             CoreStatus = "DATA_LOSS"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway           CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable   CoreStatus = "SERVICE_UNAVAILABLE"
	StatusGatewayTimeout       CoreStatus = "GATEWAY_TIMEOUT"
	StatusUnknown              CoreStatus = "UNKNOWN"
)

// HTTPStatus converts the CoreStatus to the HTTP status code returned by the API.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusValidationFailed, StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusTimeout:
		return http.StatusRequestTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
