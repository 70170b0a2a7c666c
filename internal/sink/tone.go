package sink

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/dgnsrekt/sinkpool/internal/device"
)

// Tone returns a sine wave as 16-bit little endian PCM in the layout params
// describe. amplitude is clamped to [0, 1]; a non-positive duration yields
// no samples.
func Tone(params device.Params, freq float64, duration time.Duration, amplitude float64) []byte {
	amplitude = math.Max(0, math.Min(1, amplitude))
	channels := params.Channels
	if channels < 1 {
		channels = 1
	}

	frames := max(0, int(duration.Seconds()*float64(params.SampleRate)))
	pcm := make([]byte, frames*channels*2)

	for i := 0; i < frames; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(params.SampleRate))
		sample := uint16(int16(v * math.MaxInt16))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(pcm[(i*channels+c)*2:], sample)
		}
	}
	return pcm
}
