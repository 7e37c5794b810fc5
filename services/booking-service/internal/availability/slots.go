package availability

// Interval is a half-open span [Start, End) in minutes after midnight.
type Interval struct {
	Start int
	End   int
}

// Window is the working day of one staff member, in minutes after midnight.
type Window struct {
	Open  int
	Close int
}

// Starts returns slot starts within w where a booking of duration minutes
// would not overlap any busy interval. Starts before notBefore are skipped;
// pass 0 for a day that has not begun yet.
func Starts(w Window, duration, step int, busy []Interval, notBefore int) []int {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if w.Close <= w.Open || w.Open+duration > w.Close {
		return nil
	}

	var starts []int
	for t := w.Open; t+duration <= w.Close; t += step {
		if t < notBefore {
			continue
		}
		if !overlapsAny(t, t+duration, busy) {
			starts = append(starts, t)
		}
	}
	return starts
}

func overlapsAny(start, end int, busy []Interval) bool {
	for _, b := range busy {
		// [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start < b.End && b.Start < end {
			return true
		}
	}
	return false
}
