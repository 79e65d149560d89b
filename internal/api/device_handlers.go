package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/device"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// TransferView is a transfer result with hex encoded packets
type TransferView struct {
	*transfer.Result
	Packet  string `json:"packet,omitempty"`
	Echo    string `json:"echo,omitempty"`
	Failure string `json:"error,omitempty"`
}

func newTransferView(res *transfer.Result) *TransferView {
	return &TransferView{
		Result:  res,
		Packet:  hex.EncodeToString(res.Packet),
		Echo:    hex.EncodeToString(res.Echo),
		Failure: res.Error(),
	}
}

// HandleGetDevice returns the latest recorder status
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	st := s.poller.Last()
	st.Communicating = st.Communicating || s.machine.Communicating(st.PolledAt)

	resp := map[string]interface{}{
		"status":        st,
		"transferState": s.machine.State(),
	}
	if sess, err := s.machine.Session(); err == nil {
		resp["session"] = map[string]interface{}{
			"deviceId":          sess.ID,
			"firmware":          sess.Firmware,
			"trueVersion":       sess.Firmware.TrueVersion(),
			"supported":         sess.Firmware.Supported(),
			"updateRecommended": sess.Firmware.UpdateRecommended(),
			"layout":            audiomoth.LayoutFor(sess.Firmware).ID(),
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// DevicePacketResponse is the configuration read back from the recorder
type DevicePacketResponse struct {
	DeviceID string             `json:"deviceId"`
	Firmware audiomoth.Firmware `json:"firmware"`
	*PacketResponse
}

// HandleGetDevicePacket reads the configuration currently stored on the recorder
func (s *RESTServer) HandleGetDevicePacket(w http.ResponseWriter, r *http.Request) {
	rb, err := s.machine.ReadConfiguration(r.Context())
	if err != nil {
		status := statusFor(err)
		var formatErr *audiomoth.FormatError
		if errors.As(err, &formatErr) {
			status = http.StatusBadGateway
		}
		s.respondError(w, status, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, &DevicePacketResponse{
		DeviceID:       rb.DeviceID,
		Firmware:       rb.Firmware,
		PacketResponse: newPacketResponse(rb.Packet, rb.Record),
	})
}

// HandleDeviceStream streams recorder status over a websocket
func (s *RESTServer) HandleDeviceStream(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.poller.Last())
}

// HandleConfigure sends the request settings to the attached recorder
func (s *RESTServer) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	var settings audiomoth.Settings
	if !s.decode(w, r, &settings) {
		return
	}
	if err := settings.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.machine.Configure(r.Context(), settings)
	if res == nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		log.Warn().Err(err).Str("transfer_id", res.ID.String()).Msg("Configure request failed")
	}
	s.respondJSON(w, status, newTransferView(res))
}

// statusFor maps a transfer or codec error to an HTTP status
func statusFor(err error) int {
	var (
		connErr     *device.ConnectionError
		unreachErr  *device.UnreachableError
		mismatchErr *audiomoth.PacketMismatchError
		indexErr    *audiomoth.IndexError
		settingsErr *audiomoth.SettingsError
		formatErr   *audiomoth.FormatError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, transfer.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrUnsupportedFirmware):
		return http.StatusUnprocessableEntity
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &unreachErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &mismatchErr):
		return http.StatusBadGateway
	case errors.As(err, &indexErr), errors.As(err, &settingsErr), errors.As(err, &formatErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
