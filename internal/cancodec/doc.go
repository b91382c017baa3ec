// Package cancodec packs and unpacks the board's 16-byte-per-frame CAN wire
// format.
//
// # Wire layout
//
// Each frame occupies 16 bytes, little-endian, laid out as four 32-bit
// words:
//
//	word 0: address/flags — bit 2 set means extended (29-bit) identifier,
//	        address in bits 31..3; otherwise normal (11-bit) identifier,
//	        address in bits 31..21; low bits are a marker, not address bits.
//	word 1: (bus_time << 16) | (src << 4) | len
//	word 2..3: up to 8 payload bytes, low-order first
//
// Encoding classifies a frame as extended when the caller flags it so or
// its address is at or above the threshold 0x800, so that any frame this
// package produces round-trips through Decode unchanged.
package cancodec
