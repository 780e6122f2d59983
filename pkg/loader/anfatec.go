// Package loader reads PiFM hyperspectral cubes and cAFM scalar images
// from Anfatec-format scan directories into in-memory cubes with their
// pixel-pitch metadata. Input files are never modified.
package loader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ChannelDesc describes one recorded channel as declared in the Anfatec
// parameter file.
type ChannelDesc struct {
	// FileName is the raw int32 data file for this channel, relative to
	// the parameter file's directory.
	FileName string

	// Caption is the instrument's display name for the channel,
	// e.g. "Topography" or "Current".
	Caption string

	// Scale converts the stored integer counts into physical units.
	Scale float64

	// FileNameWavelengths names the wavenumber table for hyperspectral
	// channels; empty for scalar channels.
	FileNameWavelengths string

	// PhysUnit is the unit of the scaled values, when declared.
	PhysUnit string
}

// ScanParams holds the scan-wide parameters from an Anfatec parameter file.
type ScanParams struct {
	// XPixels, YPixels are the spatial grid dimensions.
	XPixels, YPixels int

	// XLength, YLength are the physical scan extents in micrometers.
	XLength, YLength float64

	// Raw retains every non-channel key/value pair from the file for
	// parameters not interpreted here (scan rate, laser power, ...).
	Raw map[string]string
}

// ReadAnfatecParams parses an Anfatec parameter file as written by the
// Molecular Vista PiFM system. The file is ISO-8859-1 text of "key : value"
// lines with channel descriptions bracketed by FileDescBegin/FileDescEnd.
//
// It returns the scan-wide parameters and one ChannelDesc per recorded
// channel, in file order.
func ReadAnfatecParams(path string) (*ScanParams, []ChannelDesc, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, &LoadError{Path: path, Reason: "cannot open parameter file", Err: err}
	}
	defer file.Close()

	params := &ScanParams{Raw: make(map[string]string)}
	var channels []ChannelDesc
	current := make(map[string]string)
	insideDesc := false

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(latin1ToString(scanner.Bytes()))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		// Channel description blocks.
		if strings.HasPrefix(line, "FileDesc") && strings.HasSuffix(line, "Begin") {
			insideDesc = true
			current = make(map[string]string)
			continue
		}
		if strings.HasPrefix(line, "FileDesc") && strings.HasSuffix(line, "End") {
			channels = append(channels, channelFromMap(current))
			insideDesc = false
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if insideDesc {
			current[key] = value
		} else {
			params.Raw[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &LoadError{Path: path, Reason: "error reading parameter file", Err: err}
	}

	if err := fillScanParams(params, path); err != nil {
		return nil, nil, err
	}

	return params, channels, nil
}

// fillScanParams extracts the typed scan parameters from the raw map.
func fillScanParams(params *ScanParams, path string) error {
	var err error
	params.XPixels, err = intParam(params.Raw, "xPixel")
	if err != nil {
		return &LoadError{Path: path, Reason: "missing or invalid xPixel", Err: err}
	}
	params.YPixels, err = intParam(params.Raw, "yPixel")
	if err != nil {
		return &LoadError{Path: path, Reason: "missing or invalid yPixel", Err: err}
	}

	// Physical extents are optional; pitch metadata defaults to zero
	// when the instrument did not record them.
	if v, ok := params.Raw["XScanRange"]; ok {
		params.XLength, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := params.Raw["YScanRange"]; ok {
		params.YLength, _ = strconv.ParseFloat(v, 64)
	}

	return nil
}

func intParam(raw map[string]string, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q not present", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %v", key, err)
	}
	return n, nil
}

func channelFromMap(m map[string]string) ChannelDesc {
	desc := ChannelDesc{
		FileName:            m["FileName"],
		Caption:             m["Caption"],
		FileNameWavelengths: m["FileNameWavelengths"],
		PhysUnit:            m["PhysUnit"],
		Scale:               1.0,
	}
	if v, ok := m["Scale"]; ok {
		if s, err := strconv.ParseFloat(v, 64); err == nil {
			desc.Scale = s
		}
	}
	return desc
}

// latin1ToString decodes ISO-8859-1 bytes, which map one-to-one onto the
// first 256 Unicode code points.
func latin1ToString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
