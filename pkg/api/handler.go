package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/UnAfraid/wgtunnel/pkg/key"
	"github.com/UnAfraid/wgtunnel/pkg/manage"
	"github.com/UnAfraid/wgtunnel/pkg/store"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

const (
	maxConfigSize  = 64 << 10
	exportFileName = "wgtunnel-export.zip"
)

type stateRequest struct {
	State *driver.State `json:"state"`
}

type stateResponse struct {
	Name  string       `json:"name"`
	State driver.State `json:"state"`
}

type statisticsResponse struct {
	Peers         []driver.PeerStatistics `json:"peers"`
	ReceiveBytes  int64                   `json:"receiveBytes"`
	TransmitBytes int64                   `json:"transmitBytes"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type tunnelHandler struct {
	manageService manage.Service
}

func (h *tunnelHandler) list(w http.ResponseWriter, r *http.Request) {
	tunnels, err := h.manageService.Tunnels(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tunnels)
}

func (h *tunnelHandler) get(w http.ResponseWriter, r *http.Request) {
	config, err := h.manageService.Config(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, config.WgQuickString())
}

// put creates the tunnel, or replaces its config when it already exists.
func (h *tunnelHandler) put(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	config, err := wgconf.Parse(http.MaxBytesReader(w, r.Body, maxConfigSize))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	_, err = h.manageService.Config(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrTunnelNotFound):
		tunnel, err := h.manageService.Create(r.Context(), name, config)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tunnel)
	case err != nil:
		writeServiceError(w, r, err)
	default:
		tunnel, err := h.manageService.Save(r.Context(), name, config)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tunnel)
	}
}

func (h *tunnelHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manageService.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *tunnelHandler) rename(w http.ResponseWriter, r *http.Request) {
	var request renameRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeServiceError(w, r, err)
		return
	}

	tunnel, err := h.manageService.Rename(r.Context(), chi.URLParam(r, "name"), request.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tunnel)
}

func (h *tunnelHandler) getState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.manageService.Config(r.Context(), name); err != nil {
		writeServiceError(w, r, err)
		return
	}

	state, err := h.manageService.State(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Name: name, State: state})
}

func (h *tunnelHandler) setState(w http.ResponseWriter, r *http.Request) {
	var request stateRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if request.State == nil {
		writeServiceError(w, r, fmt.Errorf("%w: missing state", ErrInvalidRequest))
		return
	}

	name := chi.URLParam(r, "name")
	state, err := h.manageService.SetState(r.Context(), name, *request.State)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Name: name, State: state})
}

// statistics reports every peer with totals, or a single peer when the peer
// query parameter holds its base64 public key.
func (h *tunnelHandler) statistics(w http.ResponseWriter, r *http.Request) {
	var (
		peerKey key.Key
		onePeer bool
	)
	if text := r.URL.Query().Get("peer"); text != "" {
		var err error
		if peerKey, err = key.FromBase64(text); err != nil {
			writeServiceError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
			return
		}
		onePeer = true
	}

	statistics, err := h.manageService.Statistics(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if onePeer {
		peer, ok := statistics.Peer(peerKey)
		if !ok {
			writeServiceError(w, r, fmt.Errorf("%w: %s", ErrPeerNotFound, peerKey.Base64()))
			return
		}
		writeJSON(w, http.StatusOK, peer)
		return
	}

	peers := statistics.Peers
	if peers == nil {
		peers = []driver.PeerStatistics{}
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		Peers:         peers,
		ReceiveBytes:  statistics.TotalReceiveBytes(),
		TransmitBytes: statistics.TotalTransmitBytes(),
	})
}

// export streams a zip archive of every tunnel config.
func (h *tunnelHandler) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.manageService.Export(r.Context(), &buf); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *tunnelHandler) toolsStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.manageService.ToolsStatus(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *tunnelHandler) installTools(w http.ResponseWriter, r *http.Request) {
	result, err := h.manageService.InstallTools(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigSize)).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
