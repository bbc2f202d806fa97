package crowsnest

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vendorLine renders an information element the way `iw` prints it: OUI
// bytes followed by the remaining payload bytes.
func vendorLine(ie []byte) string {
	var data []string
	for _, b := range ie[3:] {
		data = append(data, fmt.Sprintf("%02x", b))
	}
	return fmt.Sprintf("\tVendor specific: OUI %02x:%02x:%02x, data: %s",
		ie[0], ie[1], ie[2], strings.Join(data, " "))
}

func TestParseScanOutput(t *testing.T) {
	ie := tollgateIE("00000000|1|abc|time|10|sat|10.0.0.1")
	output := strings.Join([]string{
		"BSS aa:bb:cc:dd:ee:ff(on wlan0)",
		"\tfreq: 2437",
		"\tsignal: -52.00 dBm",
		"\tSSID: TollGate-ABCD",
		vendorLine(ie),
		"BSS 11:22:33:44:55:66(on wlan0)",
		"\tfreq: 5180",
		"\tsignal: -70.00 dBm",
		"\tSSID: HomeWifi",
	}, "\n")

	networks, err := ParseScanOutput([]byte(output))
	require.NoError(t, err)
	require.Len(t, networks, 2)

	tg := networks[0]
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", tg.BSSID)
	assert.Equal(t, "TollGate-ABCD", tg.SSID)
	assert.Equal(t, -52, tg.Signal)
	assert.Equal(t, 2437, tg.Frequency)
	require.Len(t, tg.VendorElements, 1)
	assert.Equal(t, ie, tg.VendorElements[0])
	assert.True(t, IsTollgateNetwork(tg))

	home := networks[1]
	assert.Equal(t, "HomeWifi", home.SSID)
	assert.Empty(t, home.VendorElements)
	assert.False(t, IsTollgateNetwork(home))
}

func TestParseScanOutputSkipsNetworksWithoutSSID(t *testing.T) {
	output := "BSS aa:bb:cc:dd:ee:ff(on wlan0)\n\tsignal: -52.00 dBm\n"
	networks, err := ParseScanOutput([]byte(output))
	require.NoError(t, err)
	assert.Empty(t, networks)
}

func TestParseVendorElementLine(t *testing.T) {
	ie := parseVendorElementLine("\tVendor specific: OUI 31:32:31, data: 32 31 32")
	require.NotNil(t, ie)
	assert.Equal(t, "121212", string(ie))
	assert.Equal(t, "313231323132", hex.EncodeToString([]byte("121212")))

	assert.Nil(t, parseVendorElementLine("\tVendor specific: OUI zz:zz:zz"))
	assert.Nil(t, parseVendorElementLine("\tVendor specific:"))
}
