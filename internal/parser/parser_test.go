package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/scanwatch/internal/models"
)

const scanmeOutput = `Starting Nmap 7.94 ( https://nmap.org ) at 2024-05-01 10:00 UTC
Nmap scan report for scanme.nmap.org (45.33.32.156)
Host is up (0.072s latency).
Other addresses for scanme.nmap.org (not scanned): 2600:3c01::f03c:91ff:fe18:bb2f
Not shown: 996 closed tcp ports (reset)
PORT      STATE    SERVICE    VERSION
22/tcp    open     ssh        OpenSSH 6.6.1p1 Ubuntu 2ubuntu2.13 (Ubuntu Linux; protocol 2.0)
| ssh-hostkey: 
|   1024 ac:00:a0:1a:82:ff:cc:55:99:dc:67:2b:34:97:6b:75 (DSA)
|_  256 33:fa:91:0f:e0:e1:7b:1f:6d:05:a2:b0:f1:54:41:56 (ED25519)
80/tcp    open     http       Apache httpd 2.4.7 ((Ubuntu))
|_http-title: Go ahead and ScanMe!
|_http-server-header: Apache/2.4.7 (Ubuntu)
9929/tcp  open     nping-echo Nping echo
31337/tcp filtered Elite
Device type: general purpose
Running: Linux 5.X
OS details: Linux 5.0 - 5.4
Network Distance: 12 hops

Nmap done: 1 IP address (1 host up) scanned in 25.42 seconds
`

func TestParseFullOutput(t *testing.T) {
	rec := Parse(scanmeOutput)

	assert.Equal(t, "scanme.nmap.org", rec.Hostname)
	assert.Equal(t, "45.33.32.156", rec.IP)
	assert.Equal(t, "0.072s", rec.Latency)
	assert.Equal(t, "Linux 5.0 - 5.4", rec.OSDetection)

	require.Len(t, rec.Ports, 4)
	assert.Equal(t, models.PortInfo{
		Protocol: models.ProtocolTCP,
		State:    "open",
		Service:  "ssh OpenSSH 6.6.1p1 Ubuntu 2ubuntu2.13 (Ubuntu Linux; protocol 2.0)",
	}, rec.Ports["22"])
	assert.Equal(t, "http Apache httpd 2.4.7 ((Ubuntu))", rec.Ports["80"].Service)
	assert.Equal(t, "filtered", rec.Ports["31337"].State)
	assert.Equal(t, "Elite", rec.Ports["31337"].Service)

	assert.Equal(t, map[string]string{
		"http-title:":         "Go ahead and ScanMe!",
		"http-server-header:": "Apache/2.4.7 (Ubuntu)",
	}, rec.ScriptResults)
}

func TestParseOpenAndClosedPorts(t *testing.T) {
	raw := "80/tcp open http\n443/tcp closed https\n"

	rec := Parse(raw)

	assert.Equal(t, map[string]models.PortInfo{
		"80":  {Protocol: models.ProtocolTCP, State: "open", Service: "http"},
		"443": {Protocol: models.ProtocolTCP, State: "closed", Service: "https"},
	}, rec.Ports)
}

func TestParseBareAddressTarget(t *testing.T) {
	rec := Parse("Nmap scan report for 10.0.0.5\nHost is up.\n")

	assert.Equal(t, "10.0.0.5", rec.Hostname)
	assert.Equal(t, "10.0.0.5", rec.IP)
	assert.Empty(t, rec.Latency)
}

func TestParseUDPAndEmptyService(t *testing.T) {
	rec := Parse("53/udp open|filtered\n161/udp open snmp\n")

	require.Contains(t, rec.Ports, "53")
	assert.Equal(t, models.ProtocolUDP, rec.Ports["53"].Protocol)
	assert.Equal(t, "open|filtered", rec.Ports["53"].State)
	assert.Equal(t, "", rec.Ports["53"].Service)
	assert.Equal(t, "snmp", rec.Ports["161"].Service)
	assert.Empty(t, rec.ScriptResults)
}

func TestParseNoOpenPorts(t *testing.T) {
	raw := `Nmap scan report for example.com (93.184.216.34)
Host is up (0.010s latency).
All 1000 scanned ports on example.com (93.184.216.34) are in ignored states.
`
	rec := Parse(raw)

	assert.NotNil(t, rec.Ports)
	assert.Empty(t, rec.Ports)
	assert.NotNil(t, rec.ScriptResults)
	assert.Empty(t, rec.ScriptResults)
	assert.Equal(t, "example.com", rec.Hostname)
}

func TestParseLastHostReportWins(t *testing.T) {
	raw := `Nmap scan report for first.example (10.0.0.1)
Host is up (0.001s latency).
Nmap scan report for second.example (10.0.0.2)
Host is up (0.002s latency).
`
	rec := Parse(raw)

	assert.Equal(t, "second.example", rec.Hostname)
	assert.Equal(t, "10.0.0.2", rec.IP)
	assert.Equal(t, "0.002s", rec.Latency)
}

func TestParseLaterPortLineOverwrites(t *testing.T) {
	rec := Parse("22/tcp filtered ssh\n22/tcp open ssh\n")

	assert.Equal(t, "open", rec.Ports["22"].State)
}

func TestParseScriptEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		key    string
		output string
		stored bool
	}{
		{name: "no colon and no second pipe is skipped", line: "|_banner", stored: false},
		{name: "no colon with second pipe", line: "|_banner | raw bytes", key: "banner", output: "_banner | raw bytes", stored: true},
		{name: "continuation line skipped", line: "|   Supported Methods: GET HEAD", stored: false},
		{name: "bare pipe skipped", line: "|", stored: false},
		{name: "name keeps trailing colon", line: "|_http-title: Welcome", key: "http-title:", output: "Welcome", stored: true},
		{name: "colon attached", line: "|_ssl-date:2024-05-01", key: "ssl-date:2024-05-01", output: "2024-05-01", stored: true},
		{name: "marker-only first token skipped", line: "| ssh-hostkey: ", stored: false},
		{name: "indented marker", line: "  |_smb-os: Windows", key: "smb-os:", output: "Windows", stored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Parse(tt.line)
			if !tt.stored {
				assert.Empty(t, rec.ScriptResults)
				return
			}
			assert.Equal(t, map[string]string{tt.key: tt.output}, rec.ScriptResults)
		})
	}
}

func TestParseIgnoresNonPortSlashLines(t *testing.T) {
	raw := "Discovered open port 80/tcp on 10.0.0.1\nService detection performed. 22/tcp\n"

	rec := Parse(raw)

	assert.Empty(t, rec.Ports)
	assert.Empty(t, rec.ScriptResults)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"\n\n\n",
		"Nmap scan report for",
		"Host is up (",
		"/tcp",
		"80/tcp",
		"OS details:",
		"|",
		"| :",
		"||||",
		"\x00\xff garbage | more",
		"Nmap scan report for host (",
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) }, "input %q", in)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	first := Parse(scanmeOutput)
	second := Parse(scanmeOutput)

	assert.Equal(t, first, second)
}

func TestParseHandlesCRLF(t *testing.T) {
	rec := Parse("Nmap scan report for host.example (10.1.1.1)\r\n22/tcp open ssh\r\n")

	assert.Equal(t, "10.1.1.1", rec.IP)
	assert.Equal(t, "ssh", rec.Ports["22"].Service)
}

func TestNmapParserImplementsParser(t *testing.T) {
	var p Parser = New()
	rec := p.Parse("80/tcp open http")

	assert.Len(t, rec.Ports, 1)
}
