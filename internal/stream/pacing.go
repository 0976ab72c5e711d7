package stream

import "time"

// Byte window bounds for a single paced grant.
const (
	minWindow = 64 << 10  // 64 KiB
	maxWindow = 1 << 20   // 1 MiB
	minChunk  = minWindow // degenerate-range fallback
)

// maxSkew bounds the bitrate skew adjustment in either direction.
const maxSkew = 8 * time.Second

// PaceInput carries everything the policy needs for one grant decision.
// Progress fields come from the verified token, never from server memory.
type PaceInput struct {
	FileSize   int64
	Duration   time.Duration // nominal playback duration
	Now        time.Time
	StartedAt  time.Time
	HalfAt     time.Time // zero until cumulative delivery crossed 50%
	HalfOffset int64
	MaxSent    int64 // cumulative bytes delivered (highest end + 1)
	ReqStart   int64
	ReqEnd     int64 // -1 when the client sent an open-ended or no range
}

// Window is the actual byte range to deliver, inclusive on both ends.
type Window struct {
	Start int64
	End   int64
}

// Pace computes the next allowed byte range.
//
// Before 50% cumulative delivery chunks are generous so seeking and
// buffering stay fast, but no grant ever crosses the half-byte mark. After
// the crossing the policy interpolates allowed bytes linearly from the
// crossing offset toward 100% as wall-clock time advances from the crossing
// moment toward the skew-adjusted target, so full delivery arrives at
// roughly real playback speed. Heuristic, not cryptography: it makes reward
// farming cost an open connection for about the playback duration.
func Pace(in PaceInput) Window {
	if in.FileSize <= 0 {
		return Window{Start: 0, End: 0}
	}
	last := in.FileSize - 1
	halfMark := in.FileSize / 2

	start := in.ReqStart
	if start < 0 || start > last {
		start = 0
	}
	reqEnd := in.ReqEnd
	if reqEnd < start || reqEnd > last {
		reqEnd = last
	}

	var end int64
	if in.MaxSent < halfMark {
		// A seek past the half mark before it was reached resumes at the
		// watermark instead: no byte at or beyond 50% leaves the server until
		// everything before it has.
		if start >= halfMark {
			start = in.MaxSent
			if reqEnd < start {
				reqEnd = last
			}
		}
		end = min3(start+preHalfWindow(in)-1, reqEnd, halfMark-1)
	} else {
		allowed := catchUpAllowance(in)
		end = min3(allowed-1, reqEnd, last)
	}

	// Forward progress even when the schedule says "nothing yet".
	if end < start {
		end = start + minChunk - 1
		if end > last {
			end = last
		}
	}
	return Window{Start: start, End: end}
}

// preHalfWindow sizes one pre-half grant. The first request of a session gets
// a full fast-start buffer; later ones are bounded by two seconds' worth of
// bytes at the average bitrate, clamped to [64 KiB, 1 MiB].
func preHalfWindow(in PaceInput) int64 {
	if in.MaxSent == 0 {
		return maxWindow
	}
	w := 2 * avgBytesPerSec(in.FileSize, in.Duration)
	if w < minWindow {
		w = minWindow
	}
	if w > maxWindow {
		w = maxWindow
	}
	return w
}

// catchUpAllowance returns how many bytes total may have been delivered by
// now, interpolated between the 50% crossing and the target full-delivery
// time. At or past the target the whole file is unblocked.
func catchUpAllowance(in PaceInput) int64 {
	t50 := in.HalfAt
	if t50.IsZero() {
		t50 = in.StartedAt
	}
	b50 := in.HalfOffset
	if b50 <= 0 {
		b50 = in.FileSize / 2
	}

	target := t50.Add(in.Duration/2 + skew(in.FileSize, in.Duration))
	if !in.Now.Before(target) {
		return in.FileSize
	}

	total := target.Sub(t50)
	if total <= 0 {
		return in.FileSize
	}
	elapsed := in.Now.Sub(t50)
	if elapsed < 0 {
		elapsed = 0
	}
	allowed := b50 + int64(float64(in.FileSize-b50)*float64(elapsed)/float64(total))
	if allowed > in.FileSize {
		allowed = in.FileSize
	}
	return allowed
}

// skew nudges the target arrival time so that constant-bitrate interpolation
// approximates real listening time across low/high bitrate and tiny assets.
func skew(fileSize int64, duration time.Duration) time.Duration {
	bps := avgBytesPerSec(fileSize, duration)

	var s time.Duration
	switch {
	case bps < 12_000: // spoken word / heavily compressed
		s = -6 * time.Second
	case bps < 24_000:
		s = -3 * time.Second
	case bps > 120_000: // lossless-ish, download outruns the estimate
		s = 4 * time.Second
	}
	if fileSize < 1<<20 {
		s -= 2 * time.Second
	}

	if s > maxSkew {
		s = maxSkew
	}
	if s < -maxSkew {
		s = -maxSkew
	}
	return s
}

func avgBytesPerSec(fileSize int64, duration time.Duration) int64 {
	sec := int64(duration / time.Second)
	if sec <= 0 {
		return fileSize
	}
	return fileSize / sec
}

func min3(a, b, c int64) int64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
