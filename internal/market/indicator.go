package market

import "robot_crypt/internal/domain"

// SupportResistance returns the lowest low and highest high of the window.
// Returns zeros for an empty window.
func SupportResistance(klines []domain.Kline) (support, resistance float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	support = klines[0].Low
	resistance = klines[0].High
	for _, k := range klines[1:] {
		if k.Low < support {
			support = k.Low
		}
		if k.High > resistance {
			resistance = k.High
		}
	}
	return support, resistance
}

// HourlyChangePct computes the percent move of price against the open of the
// latest candle (the candle currently forming when interval is 1h).
func HourlyChangePct(klines []domain.Kline, price float64) float64 {
	if len(klines) == 0 {
		return 0
	}
	open := klines[len(klines)-1].Open
	if open <= 0 {
		return 0
	}
	return (price - open) / open * 100
}

// VolumeFromKlines averages every candle but the last, and reports the last
// candle's volume as current. A single candle is its own average.
func VolumeFromKlines(klines []domain.Kline) domain.VolumeStats {
	n := len(klines)
	switch n {
	case 0:
		return domain.VolumeStats{}
	case 1:
		return domain.VolumeStats{Average: klines[0].Volume, Current: klines[0].Volume}
	}
	sum := 0.0
	for _, k := range klines[:n-1] {
		sum += k.Volume
	}
	return domain.VolumeStats{
		Average: sum / float64(n-1),
		Current: klines[n-1].Volume,
	}
}
