package mock

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/loadtest-dash/internal/model"
)

// profile holds the starting values and bounds for one test type.
type profile struct {
	points int

	rtStart, rtMax   float64
	rpsStart, rpsMax float64
	errStart         float64
	totalRequests    int64
}

var profiles = map[model.TestType]profile{
	model.TestTypeLoad:   {points: 30, rtStart: 70, rtMax: 300, rpsStart: 20, rpsMax: 60, errStart: 0.5, totalRequests: 1000},
	model.TestTypeStress: {points: 50, rtStart: 90, rtMax: 500, rpsStart: 30, rpsMax: 60, errStart: 0.8, totalRequests: 10000},
	model.TestTypeAPI:    {points: 30, rtStart: 40, rtMax: 200, rpsStart: 10, rpsMax: 30, errStart: 0.2, totalRequests: 1000},
}

func profileFor(t model.TestType) profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[model.TestTypeLoad]
}

// Generator produces random telemetry. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a Generator seeded with seed. A nil now uses time.Now.
func NewGenerator(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// Point returns one sample stamped now: 10-60 req/s, 50-150 ms, 0-2% errors.
func (g *Generator) Point() model.TimeSeriesPoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.TimeSeriesPoint{
		Timestamp:           g.now().UnixMilli(),
		RequestsPerSecond:   float64(g.rnd.IntN(50) + 10),
		AverageResponseTime: float64(g.rnd.IntN(100) + 50),
		ErrorRate:           g.rnd.Float64() * 2,
	}
}

// FakeTestData returns a full run of samples one second apart: 50 for
// stress tests and 30 otherwise. Stress runs degrade sharply after 70%
// progress, API runs stay steady and load runs drift with occasional error
// spikes.
func (g *Generator) FakeTestData(t model.TestType) []model.TimeSeriesPoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := profileFor(t)
	rt, rps, errRate := p.rtStart, p.rpsStart, p.errStart
	start := g.now().UnixMilli()
	out := make([]model.TimeSeriesPoint, p.points)

	for i := range out {
		progress := float64(i) / float64(p.points)
		r := g.rnd.Float64

		switch t {
		case model.TestTypeStress:
			load := progress
			if progress >= 0.7 {
				load = progress * 2
			}
			rt = clamp(rt+(r()*15-3)+load*10, 20, p.rtMax)
			rps = clamp(rps+(r()*6-3), 5, p.rpsMax)
			if progress > 0.8 {
				errRate = math.Min(10, errRate+r()*2)
			} else {
				errRate = math.Max(0, errRate+(r()*2-1))
			}
		case model.TestTypeAPI:
			rt = clamp(rt+(r()*8-4), 20, p.rtMax)
			rps = clamp(rps+(r()*4-2), 5, p.rpsMax)
			if progress > 0.8 {
				errRate = math.Min(2, errRate+r())
			} else {
				errRate = math.Max(0, errRate+(r()*0.4-0.3))
			}
		default:
			rt = clamp(rt+(r()*10-3), 20, p.rtMax)
			rps = clamp(rps+(r()*6-3), 5, p.rpsMax)
			if r() > 0.9 {
				errRate = math.Min(5, errRate+r()*2)
			} else {
				errRate = math.Max(0, errRate-r()*0.3)
			}
		}

		out[i] = model.TimeSeriesPoint{
			Timestamp:           start + int64(i)*1000,
			RequestsPerSecond:   rps,
			AverageResponseTime: rt,
			ErrorRate:           errRate,
		}
	}
	return out
}

// CreateTestMetrics derives aggregate metrics for a run at progress (0-100)
// whose latest sample is point.
func CreateTestMetrics(progress float64, point model.TimeSeriesPoint, t model.TestType) model.TestMetrics {
	norm := progress / 100
	total := profileFor(t).totalRequests
	completed := int64(math.Floor(norm * float64(total)))
	share := func(f float64) int64 { return int64(math.Floor(float64(completed) * f)) }

	var codes map[int]int64
	switch t {
	case model.TestTypeStress:
		errFactor := 0.0
		if norm > 0.7 {
			errFactor = (norm - 0.7) * 3
		}
		codes = map[int]int64{
			200: share(0.98 - errFactor),
			403: share(0.01),
			404: share(0.005),
			500: share(0.005 + errFactor),
		}
	case model.TestTypeAPI:
		codes = map[int]int64{
			200: share(0.9),
			201: share(0.03),
			400: share(0.01),
			401: share(0.005),
			404: share(0.005),
			500: share(0.05 * point.ErrorRate),
		}
	default:
		codes = map[int]int64{
			200: share(0.98),
			404: share(0.01),
			500: share(0.01),
		}
	}

	return model.TestMetrics{
		RequestsCompleted:   completed,
		TotalRequests:       total,
		AverageResponseTime: point.AverageResponseTime,
		MinResponseTime:     point.AverageResponseTime * 0.5,
		MaxResponseTime:     point.AverageResponseTime * 2,
		ErrorRate:           point.ErrorRate,
		RequestsPerSecond:   point.RequestsPerSecond,
		StatusCodes:         codes,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
