package protocol

// crcPoly is the CRC-8 generator polynomial used by the controller firmware.
const crcPoly = 0x31

var crcTable = makeCRCTable(crcPoly)

// makeCRCTable precomputes the MSB-first remainders for every byte value.
func makeCRCTable(poly byte) [256]byte {
	var t [256]byte
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for b := 0; b < 8; b++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Checksum returns the CRC-8 (poly 0x31, init 0x00, no reflection, no final
// xor) of b. The firmware computes the same value bit for bit.
func Checksum(b []byte) byte {
	var crc byte
	for _, v := range b {
		crc = crcTable[crc^v]
	}
	return crc
}
