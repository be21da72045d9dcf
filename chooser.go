package natmapper

import "net"

// chooseByPrefix returns the candidate sharing the longest common prefix
// with target, measured bit by bit up to 31 bits. Ties break to the lowest
// index in candidates. If candidates is empty, ok is false (spec §4.2).
//
// Used twice: picking which private IP to advertise to a given router, and
// ranking which known router IPs to probe first against a private IP.
func chooseByPrefix(candidates []net.IP, target net.IP) (net.IP, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	t := target.To4()
	if t == nil {
		return candidates[0], true
	}

	bestIdx := 0
	bestBits := -1
	for i, c := range candidates {
		c4 := c.To4()
		if c4 == nil {
			continue
		}
		bits := commonPrefixBits(c4, t)
		if bits > bestBits {
			bestBits = bits
			bestIdx = i
		}
	}
	if bestBits < 0 {
		return candidates[0], true
	}
	return candidates[bestIdx], true
}

// commonPrefixBits counts the number of leading bits shared by two IPv4
// addresses, capped at 31 bits (spec §4.2).
func commonPrefixBits(a, b net.IP) int {
	count := 0
	for i := 0; i < 4 && count < 31; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0 && count < 31; bit-- {
			if x&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	if count > 31 {
		count = 31
	}
	return count
}
