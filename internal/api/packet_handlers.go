package api

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// BuildPacketRequest asks for the packet a firmware would receive
type BuildPacketRequest struct {
	Settings            audiomoth.Settings `json:"settings"`
	FirmwareVersion     string             `json:"firmwareVersion" validate:"required,max=16"`
	FirmwareDescription string             `json:"firmwareDescription" validate:"max=32"`
	// Time defaults to now.
	Time *time.Time `json:"time"`
}

// DecodePacketRequest holds a hex packet and its layout
type DecodePacketRequest struct {
	Packet string `json:"packet" validate:"required,max=256"`
	Layout string `json:"layout" validate:"required"`
}

// PacketResponse describes an encoded packet
type PacketResponse struct {
	Layout audiomoth.LayoutID `json:"layout"`
	Packet string             `json:"packet,omitempty"`
	Length int                `json:"length"`
	Time   time.Time          `json:"time"`
	Flags  map[string]bool    `json:"flags"`
	Record *audiomoth.Record  `json:"record"`
}

func newPacketResponse(packet []byte, rec *audiomoth.Record) *PacketResponse {
	return &PacketResponse{
		Layout: rec.Layout,
		Packet: hex.EncodeToString(packet),
		Length: len(packet),
		Time:   rec.Time(),
		Flags:  rec.Flags(),
		Record: rec,
	}
}

// HandleBuildPacket encodes settings for a firmware without touching the device
func (s *RESTServer) HandleBuildPacket(w http.ResponseWriter, r *http.Request) {
	var req BuildPacketRequest
	if !s.decode(w, r, &req) {
		return
	}

	version, err := audiomoth.ParseVersion(req.FirmwareVersion)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	fw := audiomoth.NewFirmware(version, req.FirmwareDescription)

	at := time.Now()
	if req.Time != nil {
		at = *req.Time
	}

	packet, err := audiomoth.BuildPacket(&req.Settings, fw, at)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	rec, err := audiomoth.ReadPacket(packet, audiomoth.LayoutFor(fw).ID())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, newPacketResponse(packet, rec))
}

// HandleDecodePacket decodes a hex packet
func (s *RESTServer) HandleDecodePacket(w http.ResponseWriter, r *http.Request) {
	var req DecodePacketRequest
	if !s.decode(w, r, &req) {
		return
	}

	layout, err := audiomoth.ParseLayoutID(req.Layout)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	packet, err := hex.DecodeString(req.Packet)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "packet is not valid hex")
		return
	}

	rec, err := audiomoth.ReadPacket(packet, layout)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, newPacketResponse(packet, rec))
}
