package price

// movingAverageWindow is the number of most recent points averaged.
const movingAverageWindow = 7

// Summary holds the market statistics shown next to the current price.
type Summary struct {
	MovingAverage    float64 `json:"moving_average"`
	PercentageChange float64 `json:"percentage_change"`
	Low              float64 `json:"low"`
	High             float64 `json:"high"`
}

// Summarize computes the statistics of a daily series against the current
// price. A non-positive current price leaves the percentage change at zero.
func Summarize(points []Point, current float64) Summary {
	var s Summary
	if len(points) == 0 {
		return s
	}

	window := points
	if len(window) > movingAverageWindow {
		window = window[len(window)-movingAverageWindow:]
	}
	var sum float64
	for _, p := range window {
		sum += p.Price
	}
	s.MovingAverage = sum / float64(len(window))

	if current > 0 && s.MovingAverage != 0 {
		s.PercentageChange = (current - s.MovingAverage) / s.MovingAverage * 100
	}

	s.Low, s.High = points[0].Price, points[0].Price
	for _, p := range points[1:] {
		if p.Price < s.Low {
			s.Low = p.Price
		}
		if p.Price > s.High {
			s.High = p.Price
		}
	}
	return s
}
