// Package voice bridges Twilio phone calls to the OpenAI Realtime API.
//
// Twilio media streams carry G.711 mu-law audio at 8kHz; the realtime API
// speaks 16-bit linear PCM at 24kHz. This package transcodes and resamples
// in both directions and relays the frames.
package voice

import "encoding/binary"

// mulawDecodeTable maps each mu-law byte to its 16-bit linear PCM sample.
var mulawDecodeTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

const mulawBias = 0x84

// MulawToPCM16 decodes G.711 mu-law bytes to 16-bit little-endian PCM.
func MulawToPCM16(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(mulawDecodeTable[b]))
	}
	return pcm
}

// PCM16ToMulaw encodes 16-bit little-endian PCM to G.711 mu-law. A trailing
// odd byte is dropped.
func PCM16ToMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = encodeMulawSample(sample)
	}
	return out
}

func encodeMulawSample(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > 32635 {
		s = 32635
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^(sign | byte(exponent<<4) | byte(mantissa))
}

// Upsample8kTo24k converts 16-bit PCM from 8kHz to 24kHz by repeating each
// sample three times. Crude, but adequate for telephony speech.
func Upsample8kTo24k(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*6)
	for i := 0; i < n; i++ {
		s := pcm[i*2 : i*2+2]
		copy(out[i*6:], s)
		copy(out[i*6+2:], s)
		copy(out[i*6+4:], s)
	}
	return out
}

// Downsample24kTo8k converts 16-bit PCM from 24kHz to 8kHz by keeping every
// third sample.
func Downsample24kTo8k(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, 0, (n/3+1)*2)
	for i := 0; i < n; i += 3 {
		out = append(out, pcm[i*2], pcm[i*2+1])
	}
	return out
}
