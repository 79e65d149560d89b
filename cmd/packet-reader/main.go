package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/savefile"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// appVersion gates which saved configuration files -build accepts
var appVersion = audiomoth.Version{1, 0, 1}

func main() {
	var decodeHex = flag.String("decode", "", "Hex encoded packet to decode")
	var layoutName = flag.String("layout", string(audiomoth.LayoutMultiGain), "Packet layout for -decode (multi-gain or single-gain)")
	var buildFile = flag.String("build", "", "Saved configuration file to encode")
	var firmware = flag.String("firmware", audiomoth.LatestFirmwareVersion.String(), "Firmware version for -build")
	var description = flag.String("description", "AudioMoth-MultiGain", "Firmware description for -build")
	var at = flag.String("time", "", "Packet time for -build (RFC 3339, default now)")
	var verbose = flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var err error
	switch {
	case *decodeHex != "" && *buildFile != "":
		err = fmt.Errorf("-decode and -build are mutually exclusive")
	case *decodeHex != "":
		err = decode(*decodeHex, *layoutName)
	case *buildFile != "":
		err = build(*buildFile, *firmware, *description, *at)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("packet-reader failed")
	}
}

func decode(hexPacket, layoutName string) error {
	layout, err := audiomoth.ParseLayoutID(layoutName)
	if err != nil {
		return err
	}

	packet, err := hex.DecodeString(strings.TrimSpace(hexPacket))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}

	rec, err := audiomoth.ReadPacket(packet, layout)
	if err != nil {
		return err
	}
	return printRecord(packet, rec)
}

func build(path, firmware, description, at string) error {
	version, err := audiomoth.ParseVersion(firmware)
	if err != nil {
		return err
	}
	fw := audiomoth.NewFirmware(version, description)

	sendTime := time.Now()
	if at != "" {
		if sendTime, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("parse -time: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read configuration file: %w", err)
	}

	loaded, err := savefile.Load(data, savefile.DefaultSettings(), appVersion, savefile.UseDefaults)
	if err != nil {
		return err
	}
	if len(loaded.Missing) > 0 {
		log.Warn().Strs("missing", loaded.Missing).Msg("Using defaults for missing settings")
	}

	packet, err := audiomoth.BuildPacket(&loaded.Settings, fw, sendTime)
	if err != nil {
		return err
	}

	rec, err := audiomoth.ReadPacket(packet, audiomoth.LayoutFor(fw).ID())
	if err != nil {
		return err
	}
	return printRecord(packet, rec)
}

func printRecord(packet []byte, rec *audiomoth.Record) error {
	out := struct {
		Packet string            `json:"packet"`
		Length int               `json:"length"`
		Time   time.Time         `json:"time"`
		Flags  map[string]bool   `json:"flags"`
		Record *audiomoth.Record `json:"record"`
	}{
		Packet: hex.EncodeToString(packet),
		Length: len(packet),
		Time:   rec.Time(),
		Flags:  rec.Flags(),
		Record: rec,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
