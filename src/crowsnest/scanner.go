package crowsnest

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Scanner produces NetworkInfo from `iw` scan output on all STA interfaces.
type Scanner struct{}

// NewScanner creates a Wi-Fi scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ScanNetworks scans for available Wi-Fi networks on all managed interfaces.
func (s *Scanner) ScanNetworks() ([]NetworkInfo, error) {
	interfaces, err := getManagedInterfaces()
	if err != nil {
		logger.WithError(err).Error("Failed to list managed interfaces")
		return nil, err
	}

	var allNetworks []NetworkInfo
	for _, iface := range interfaces {
		cmd := exec.Command("iw", "dev", iface, "scan")
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			// A busy interface fails the scan; not fatal for the others.
			logger.WithFields(logrus.Fields{
				"interface": iface,
				"error":     err,
				"stderr":    stderr.String(),
			}).Warn("Scan failed on interface, continuing with others")
			continue
		}

		networks, err := ParseScanOutput(stdout.Bytes())
		if err != nil {
			logger.WithFields(logrus.Fields{
				"interface": iface,
				"error":     err,
			}).Warn("Failed to parse scan output")
			continue
		}
		allNetworks = append(allNetworks, networks...)
	}

	logger.WithField("network_count", len(allNetworks)).Debug("Finished scanning")
	return allNetworks, nil
}

// getManagedInterfaces finds all network interfaces of type 'managed' (STA).
func getManagedInterfaces() ([]string, error) {
	cmd := exec.Command("iw", "dev")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var interfaces []string
	scanner := bufio.NewScanner(bytes.NewReader(stdout.Bytes()))
	var currentInterface string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "Interface") {
			parts := strings.Fields(line)
			if len(parts) > 1 {
				currentInterface = parts[1]
			}
		} else if strings.HasPrefix(line, "type") && strings.Contains(line, "managed") {
			if currentInterface != "" {
				interfaces = append(interfaces, currentInterface)
				currentInterface = ""
			}
		}
	}

	if len(interfaces) == 0 {
		return nil, errors.New("no managed Wi-Fi interfaces found")
	}
	return interfaces, nil
}

var (
	bssidRegex = regexp.MustCompile(`BSS ([0-9a-fA-F:]{17})\(on`)
	hexByte    = regexp.MustCompile(`^[0-9a-fA-F]{2}$`)
)

// ParseScanOutput parses `iw dev <iface> scan` output into NetworkInfo,
// collecting vendor-specific information element payloads per BSS.
func ParseScanOutput(output []byte) ([]NetworkInfo, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	var networks []NetworkInfo
	var current *NetworkInfo

	flush := func() {
		if current != nil && current.SSID != "" {
			networks = append(networks, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "BSS "):
			flush()
			matches := bssidRegex.FindStringSubmatch(line)
			if len(matches) > 1 {
				current = &NetworkInfo{BSSID: matches[1]}
			} else {
				logger.WithField("line", line).Warn("Could not extract BSSID from line")
			}
		case current == nil:
			continue
		case strings.HasPrefix(line, "\tSSID:"):
			current.SSID = strings.TrimSpace(strings.TrimPrefix(line, "\tSSID:"))
		case strings.HasPrefix(line, "\tsignal:"):
			signalStr := strings.TrimSpace(strings.TrimPrefix(line, "\tsignal:"))
			signalStr = strings.TrimSuffix(signalStr, " dBm")
			if signal, err := strconv.ParseFloat(signalStr, 64); err == nil {
				current.Signal = int(signal)
			}
		case strings.HasPrefix(line, "\tfreq:"):
			freqStr := strings.TrimSpace(strings.TrimPrefix(line, "\tfreq:"))
			if freq, err := strconv.ParseFloat(freqStr, 64); err == nil {
				current.Frequency = int(freq)
			}
		case strings.Contains(line, "Vendor specific:"):
			if ie := parseVendorElementLine(line); ie != nil {
				current.VendorElements = append(current.VendorElements, ie)
			}
		}
	}

	flush()
	return networks, scanner.Err()
}

// parseVendorElementLine reassembles the element payload from a line of the
// form "\tVendor specific: OUI aa:bb:cc, data: 01 02 03". The OUI bytes are
// part of the payload.
func parseVendorElementLine(line string) []byte {
	var payload []byte

	if idx := strings.Index(line, "OUI "); idx >= 0 {
		rest := line[idx+len("OUI "):]
		ouiStr := rest
		if comma := strings.Index(rest, ","); comma >= 0 {
			ouiStr = rest[:comma]
		}
		for _, part := range strings.Split(strings.TrimSpace(ouiStr), ":") {
			if !hexByte.MatchString(part) {
				return nil
			}
			b, _ := hex.DecodeString(part)
			payload = append(payload, b...)
		}
	}

	if idx := strings.Index(line, "data:"); idx >= 0 {
		for _, part := range strings.Fields(line[idx+len("data:"):]) {
			if !hexByte.MatchString(part) {
				return nil
			}
			b, _ := hex.DecodeString(part)
			payload = append(payload, b...)
		}
	}

	if len(payload) == 0 {
		return nil
	}
	return payload
}
