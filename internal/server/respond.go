package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teemow/driveproxy/internal/files"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// statusFor maps a failed operation to its HTTP status and message.
func statusFor(op string, err error) (int, string) {
	var fe *files.Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError, files.MsgInternal
	}

	switch fe.Kind {
	case files.KindUnauthorized:
		return http.StatusUnauthorized, files.MsgUnauthorized
	case files.KindNoCredentials, files.KindBadRequest, files.KindUploadFailed:
		return http.StatusBadRequest, fe.Message
	case files.KindUnresolved:
		if op == opDelete {
			return http.StatusUnauthorized, files.MsgUnauthorized
		}
		return http.StatusBadRequest, fe.Message
	case files.KindNotFound:
		return http.StatusNotFound, fe.Message
	case files.KindQuota:
		return http.StatusTooManyRequests, fe.Message
	case files.KindUpstream, files.KindStream:
		return http.StatusBadGateway, fe.Message
	default:
		return http.StatusInternalServerError, files.MsgInternal
	}
}
