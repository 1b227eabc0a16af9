package intake

import "math"

// DefaultDoseCoefficient scales µg/m³ × km into dose units.
const DefaultDoseCoefficient = 1.0

// DoseForHour estimates the dose inhaled during one hour from the dust
// concentration (µg/m³) and the distance travelled (metres). Negative or
// non-finite inputs count as zero.
func DoseForHour(concentration, distance float64) float64 {
	return doseForHour(concentration, distance, DefaultDoseCoefficient)
}

func doseForHour(concentration, distance, coefficient float64) float64 {
	c := sanitize(concentration)
	d := sanitize(distance)
	k := sanitize(coefficient)
	dose := c * (d / 1000) * k
	if math.IsInf(dose, 0) || math.IsNaN(dose) {
		return math.MaxFloat64
	}
	return dose
}

// DailyDose sums the hourly doses of aligned (concentration, distance)
// pairs and rounds to the nearest integer.
func DailyDose(pairs []Pair[HourlyValue, HourlyValue]) int {
	return dailyDose(pairs, DefaultDoseCoefficient)
}

func dailyDose(pairs []Pair[HourlyValue, HourlyValue], coefficient float64) int {
	var total float64
	for _, p := range pairs {
		total += doseForHour(p.Left.Value, p.Right.Value, coefficient)
	}
	if total > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(total))
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
