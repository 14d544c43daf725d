package calibration

// ReferenceCycleScale converts a valve duration into the cumulative open
// time of one full injection cycle in the reference dataset.
const ReferenceCycleScale = 25

// referenceSeries are TDS₀ readings taken after each full cycle at a fixed
// valve duration. Reading k (zero based) was taken at cumulative time
// duration × ReferenceCycleScale × (k+1).
var referenceSeries = []struct {
	duration float64
	tds      []float64
}{
	{25, []float64{
		102, 110, 103, 98, 92, 89, 81, 71, 68, 62,
		58, 54, 50, 46, 46, 42, 39, 39, 37, 34,
		35, 31, 30, 29, 28,
	}},
	{50, []float64{
		151, 142, 132, 114, 104, 94, 82, 74, 64, 60,
		54, 47, 47, 41, 41, 36, 32, 32,
	}},
	{75, []float64{
		183.83, 175.96, 154.32, 135.34, 118.69, 104.09, 91.29, 80.06,
		70.21, 61.58, 58.94, 56.4, 54.0, 51.69, 49.6,
	}},
	{100, []float64{
		199, 191, 158, 134, 108, 96, 76, 62, 52, 41,
		33, 29, 30, 27, 28, 27,
	}},
	{200, []float64{
		337, 264, 193, 157, 112, 84, 60, 42, 37, 38,
	}},
	{300, []float64{
		441, 276, 184, 107, 63, 34,
	}},
}

// ReferenceSamples returns the bench calibration dataset: 90 readings over
// valve durations from 25 ms to 300 ms.
func ReferenceSamples() []Sample {
	var out []Sample
	for _, series := range referenceSeries {
		cycle := series.duration * ReferenceCycleScale
		for k, v := range series.tds {
			out = append(out, Sample{
				Duration:       series.duration,
				CumulativeTime: cycle * float64(k+1),
				Measurement:    v,
			})
		}
	}
	return out
}

// Reference returns the bench calibration dataset as a TrainingSet.
func Reference() *TrainingSet {
	ts, err := New(ReferenceSamples())
	if err != nil {
		panic("reference calibration data is invalid: " + err.Error())
	}
	return ts
}
