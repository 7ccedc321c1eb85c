package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wgtunnel/pkg/manage"
	"github.com/UnAfraid/wgtunnel/pkg/rootshell"
	"github.com/UnAfraid/wgtunnel/pkg/store"
	"github.com/UnAfraid/wgtunnel/pkg/toolsinstaller"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

type errorResponse struct {
	Error    string         `json:"error"`
	Reason   *wgconf.Reason `json:"reason,omitempty"`
	Section  string         `json:"section,omitempty"`
	Location string         `json:"location,omitempty"`
	Text     string         `json:"text,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.
			WithError(err).
			Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	response := errorResponse{
		Error: err.Error(),
	}

	var badConfigErr *wgconf.BadConfigError
	if errors.As(err, &badConfigErr) {
		response.Reason = &badConfigErr.Reason
		response.Section = badConfigErr.Section.String()
		response.Location = badConfigErr.Location.String()
		response.Text = badConfigErr.Text
	}

	writeJSON(w, status, response)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		badConfigErr *wgconf.BadConfigError
		maxBytesErr  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &badConfigErr),
		errors.Is(err, store.ErrInvalidName),
		errors.Is(err, driver.ErrInvalidState),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTunnelNotFound),
		errors.Is(err, driver.ErrTunnelNotFound),
		errors.Is(err, manage.ErrNoTunnels),
		errors.Is(err, ErrPeerNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTunnelAlreadyExists),
		errors.Is(err, manage.ErrTunnelIsUp):
		return http.StatusConflict
	case errors.Is(err, rootshell.ErrNoRoot),
		errors.Is(err, toolsinstaller.ErrToolsUnavailable),
		errors.Is(err, manage.ErrToolsNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logrus.
			WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	writeError(w, status, err)
}
