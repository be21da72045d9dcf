package natmapper

import (
	"net"
	"testing"
)

func TestPCPRequestEncodeLayout(t *testing.T) {
	nonce, err := newPCPNonce()
	if err != nil {
		t.Fatalf("newPCPNonce() error = %v", err)
	}

	req := pcpMapRequest{
		lifetime:              3600,
		clientIP:              net.ParseIP("192.168.1.100"),
		nonce:                 nonce,
		internalPort:          8080,
		suggestedExternalPort: 0,
		suggestedExternalIP:   net.IPv4zero,
	}

	buf := req.encode()
	if len(buf) != pcpRequestSize {
		t.Fatalf("encode() length = %d, want %d", len(buf), pcpRequestSize)
	}

	if buf[0] != pcpVersion {
		t.Errorf("version byte = %d, want %d", buf[0], pcpVersion)
	}
	if buf[1] != pcpOpcodeMap {
		t.Errorf("opcode byte = %d, want %d (request, high bit clear)", buf[1], pcpOpcodeMap)
	}

	lifetime := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	if lifetime != 3600 {
		t.Errorf("lifetime field = %d, want 3600", lifetime)
	}

	// client IP mapped prefix at offset 8: 10 zero bytes, then 0xff 0xff.
	for i := 8; i < 18; i++ {
		if buf[i] != 0 {
			t.Errorf("client IP mapped prefix byte %d = 0x%02x, want 0x00", i-8, buf[i])
		}
	}
	if buf[18] != 0xff || buf[19] != 0xff {
		t.Errorf("client IP mapped marker = 0x%02x%02x, want 0xffff", buf[18], buf[19])
	}
	if !net.IP(buf[20:24]).Equal(net.ParseIP("192.168.1.100").To4()) {
		t.Errorf("client IP octets = %v, want 192.168.1.100", net.IP(buf[20:24]))
	}

	if string(buf[24:36]) != string(nonce[:]) {
		t.Error("nonce not echoed verbatim at offset 24")
	}

	if buf[36] != pcpProtoUDP {
		t.Errorf("protocol byte = %d, want %d (UDP)", buf[36], pcpProtoUDP)
	}

	internalPort := uint16(buf[40])<<8 | uint16(buf[41])
	if internalPort != 8080 {
		t.Errorf("internal port = %d, want 8080", internalPort)
	}
}

func TestPCPDeleteRequestHasZeroLifetime(t *testing.T) {
	nonce, _ := newPCPNonce()
	req := pcpMapRequest{
		lifetime:     0,
		clientIP:     net.ParseIP("192.168.1.100"),
		nonce:        nonce,
		internalPort: 8080,
	}
	buf := req.encode()
	lifetime := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	if lifetime != 0 {
		t.Errorf("deletion request lifetime = %d, want 0", lifetime)
	}
	if string(buf[24:36]) != string(nonce[:]) {
		t.Error("deletion request must carry the original nonce verbatim")
	}
}

func buildPCPResponse(resultCode uint8, lifetime uint32, nonce [12]byte, externalPort uint16, externalIP net.IP) []byte {
	buf := make([]byte, pcpResponseSize)
	buf[0] = pcpVersion
	buf[1] = pcpOpcodeMap | 0x80
	buf[3] = resultCode
	buf[4] = byte(lifetime >> 24)
	buf[5] = byte(lifetime >> 16)
	buf[6] = byte(lifetime >> 8)
	buf[7] = byte(lifetime)
	copy(buf[24:36], nonce[:])
	buf[42] = byte(externalPort >> 8)
	buf[43] = byte(externalPort)
	v4 := externalIP.To4()
	copy(buf[56:60], v4)
	return buf
}

func TestDecodePCPResponseSuccess(t *testing.T) {
	nonce, _ := newPCPNonce()
	raw := buildPCPResponse(pcpSuccess, 1800, nonce, 9090, net.ParseIP("203.0.113.5"))

	resp, err := decodePCPResponse(raw)
	if err != nil {
		t.Fatalf("decodePCPResponse() error = %v", err)
	}
	if resp.resultCode != pcpSuccess {
		t.Errorf("resultCode = %d, want %d", resp.resultCode, pcpSuccess)
	}
	if resp.lifetime != 1800 {
		t.Errorf("lifetime = %d, want 1800", resp.lifetime)
	}
	if resp.externalPort != 9090 {
		t.Errorf("externalPort = %d, want 9090", resp.externalPort)
	}
	if !resp.externalIP.Equal(net.ParseIP("203.0.113.5")) {
		t.Errorf("externalIP = %v, want 203.0.113.5", resp.externalIP)
	}
	if resp.nonce != nonce {
		t.Error("nonce not echoed correctly in response decode")
	}
}

func TestDecodePCPResponseNoResources(t *testing.T) {
	nonce, _ := newPCPNonce()
	raw := buildPCPResponse(pcpNoResources, 0, nonce, 0, net.IPv4zero)

	resp, err := decodePCPResponse(raw)
	if err != nil {
		t.Fatalf("decodePCPResponse() error = %v", err)
	}
	if resp.resultCode != pcpNoResources {
		t.Errorf("resultCode = %d, want %d", resp.resultCode, pcpNoResources)
	}
}

func TestDecodePCPResponseTooShort(t *testing.T) {
	if _, err := decodePCPResponse(make([]byte, 10)); err == nil {
		t.Error("expected error decoding a too-short response")
	}
}
