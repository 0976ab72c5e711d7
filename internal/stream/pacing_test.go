package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFileSize = int64(10_000_000)
	testHalf     = testFileSize / 2
)

var testDuration = 200 * time.Second

func baseInput(now time.Time) PaceInput {
	return PaceInput{
		FileSize:  testFileSize,
		Duration:  testDuration,
		Now:       now,
		StartedAt: now,
		ReqStart:  0,
		ReqEnd:    -1,
	}
}

func TestPaceFirstRequestSynthesizesOneMiB(t *testing.T) {
	now := time.Now()
	win := Pace(baseInput(now))
	assert.Equal(t, int64(0), win.Start)
	assert.Equal(t, int64(1<<20-1), win.End) // bytes 0-1,048,575
}

func TestPacePreHalfNeverCrossesHalfMark(t *testing.T) {
	now := time.Now()

	in := baseInput(now)
	in.MaxSent = testHalf - 10 // ten bytes shy of the mark
	in.ReqStart = testHalf - 10
	win := Pace(in)
	assert.Equal(t, testHalf-1, win.End)

	// explicit range reaching deep past the mark is still capped
	in.ReqEnd = testFileSize - 1
	win = Pace(in)
	assert.Equal(t, testHalf-1, win.End)
}

func TestPacePreHalfSeekPastHalfResumesAtWatermark(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.MaxSent = 2_000_000
	in.ReqStart = testHalf + 100 // premature seek toward the end
	in.ReqEnd = testFileSize - 1

	win := Pace(in)
	assert.Equal(t, int64(2_000_000), win.Start)
	assert.LessOrEqual(t, win.End, testHalf-1)
}

func TestPaceCatchUpInterpolatesLinearly(t *testing.T) {
	start := time.Now()
	t50 := start.Add(10 * time.Second)

	in := baseInput(t50.Add(50 * time.Second)) // halfway through catch-up
	in.StartedAt = start
	in.HalfAt = t50
	in.HalfOffset = testHalf
	in.MaxSent = testHalf
	in.ReqStart = testHalf

	// target = t50 + 100s (no skew for this bitrate); at +50s the allowance
	// is half of the remaining bytes
	win := Pace(in)
	assert.Equal(t, testHalf, win.Start)
	assert.InDelta(t, float64(7_500_000-1), float64(win.End), float64(testFileSize)*0.01)
	assert.Less(t, win.End, testFileSize-1)
}

func TestPaceCatchUpUnlocksAtTarget(t *testing.T) {
	start := time.Now()
	t50 := start.Add(10 * time.Second)

	in := baseInput(t50.Add(101 * time.Second)) // past the target
	in.StartedAt = start
	in.HalfAt = t50
	in.HalfOffset = testHalf
	in.MaxSent = testHalf
	in.ReqStart = testHalf

	win := Pace(in)
	assert.Equal(t, testFileSize-1, win.End)
}

func TestPaceDegenerateRangeFallsBackToMinChunk(t *testing.T) {
	t50 := time.Now()

	// immediately after the crossing the schedule allows nothing yet
	in := baseInput(t50)
	in.HalfAt = t50
	in.HalfOffset = testHalf
	in.MaxSent = testHalf
	in.ReqStart = testHalf

	win := Pace(in)
	assert.Equal(t, testHalf, win.Start)
	assert.Equal(t, testHalf+minChunk-1, win.End) // forward progress guaranteed
}

func TestPaceMonotonicEndOverSequence(t *testing.T) {
	start := time.Now()
	in := baseInput(start)

	var prevEnd int64 = -1
	now := start
	for i := 0; i < 200; i++ {
		in.Now = now
		in.ReqStart = in.MaxSent
		in.ReqEnd = -1

		win := Pace(in)
		require.GreaterOrEqual(t, win.End, win.Start)
		require.LessOrEqual(t, win.End, testFileSize-1)
		require.GreaterOrEqual(t, win.End, prevEnd)
		prevEnd = win.End

		if win.End+1 > in.MaxSent {
			in.MaxSent = win.End + 1
		}
		if in.HalfAt.IsZero() && in.MaxSent >= testHalf {
			in.HalfAt = now
			in.HalfOffset = in.MaxSent
		}
		if in.MaxSent == testFileSize {
			return
		}
		now = now.Add(2 * time.Second)
	}
	t.Fatal("delivery never completed")
}

func TestPaceNeverExceedsRequestedEnd(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.ReqEnd = 1000

	win := Pace(in)
	assert.Equal(t, int64(0), win.Start)
	assert.Equal(t, int64(1000), win.End)
}

func TestSkewBounded(t *testing.T) {
	cases := []struct {
		fileSize int64
		duration time.Duration
	}{
		{100, time.Second},
		{500_000, 600 * time.Second},
		{10_000_000, 200 * time.Second},
		{200_000_000, 180 * time.Second},
		{1_000_000, 0},
	}
	for _, c := range cases {
		s := skew(c.fileSize, c.duration)
		assert.LessOrEqual(t, s, maxSkew)
		assert.GreaterOrEqual(t, s, -maxSkew)
	}
}
