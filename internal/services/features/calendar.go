package features

func addCalendar(t *builder, s *barSeries) {
	hour := make([]float64, s.n)
	dow := make([]float64, s.n)
	month := make([]float64, s.n)
	asia := make([]float64, s.n)
	london := make([]float64, s.n)
	ny := make([]float64, s.n)
	overlap := make([]float64, s.n)
	for i, ts := range s.times {
		ts = ts.UTC()
		h := ts.Hour()
		hour[i] = float64(h)
		dow[i] = float64((int(ts.Weekday()) + 6) % 7) // Monday = 0
		month[i] = float64(ts.Month())
		asia[i] = boolf(h < 8)
		london[i] = boolf(h >= 8 && h < 16)
		ny[i] = boolf(h >= 13 && h < 22)
		overlap[i] = boolf(h >= 13 && h < 16)
	}
	t.add("Hour", hour)
	t.add("DayOfWeek", dow)
	t.add("Month", month)
	t.add("IsAsianSession", asia)
	t.add("IsLondonSession", london)
	t.add("IsNYSession", ny)
	t.add("IsOverlap", overlap)
}
