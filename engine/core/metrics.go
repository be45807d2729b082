package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	// Mesh counters of the last recorded frame.
	Deformed    uint32
	Passthrough uint32
	Failed      uint32
	// Totals since initialization.
	TotalFrames uint64
	TotalFailed uint64
}

var onceMetrics sync.Once
var metricsMutex sync.Mutex
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

// MetricsReset drops all accumulated state.
func MetricsReset() {
	MetricsInitialize()
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	*metricsState = MetricsState{}
}

func MetricsUpdate(frame_elapsed_time float64) {
	MetricsInitialize()
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Calculate frame ms average
	frame_ms := (frame_elapsed_time * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frame_ms
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += metricsState.MStimes[i]
		}
		metricsState.MSavg = sum / float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frame_ms
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all Frames.
	metricsState.Frames++
	metricsState.TotalFrames++
}

// MetricsRecordMeshes stores the per-frame mesh counters.
func MetricsRecordMeshes(deformed, passthrough, failed uint32) {
	MetricsInitialize()
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	metricsState.Deformed = deformed
	metricsState.Passthrough = passthrough
	metricsState.Failed = failed
	metricsState.TotalFailed += uint64(failed)
}

func MetricsFrameTime() float64 {
	MetricsInitialize()
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	return metricsState.MSavg
}

// MetricsSnapshot returns a copy of the current state.
func MetricsSnapshot() MetricsState {
	MetricsInitialize()
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	return *metricsState
}
