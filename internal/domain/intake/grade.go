package intake

// Grade is the coarse severity bucket for a day's combined dose.
type Grade string

const (
	GradeGood          Grade = "good"
	GradeModerate      Grade = "moderate"
	GradeUnhealthy     Grade = "unhealthy"
	GradeVeryUnhealthy Grade = "very_unhealthy"
	GradeHazardous     Grade = "hazardous"
)

// Level returns the 1-based numeric level clients render.
func (g Grade) Level() int {
	switch g {
	case GradeModerate:
		return 2
	case GradeUnhealthy:
		return 3
	case GradeVeryUnhealthy:
		return 4
	case GradeHazardous:
		return 5
	default:
		return 1
	}
}

// GradeFor maps a combined fine + ultrafine dose to a grade. Values outside
// [0, 1000] fall back to good.
func GradeFor(combined int) Grade {
	switch {
	case combined >= 0 && combined < 50:
		return GradeGood
	case combined >= 50 && combined < 100:
		return GradeModerate
	case combined >= 100 && combined < 150:
		return GradeUnhealthy
	case combined >= 150 && combined < 200:
		return GradeVeryUnhealthy
	case combined >= 200 && combined <= 1000:
		return GradeHazardous
	default:
		return GradeGood
	}
}
