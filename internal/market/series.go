package market

// Series 为指标计算使用的列式价格，下标与输入K线一一对应。
type Series struct {
	High  []float64
	Low   []float64
	Close []float64
}

// NewSeries 按列展开K线。
func NewSeries(bars []Bar) Series {
	s := Series{
		High:  make([]float64, len(bars)),
		Low:   make([]float64, len(bars)),
		Close: make([]float64, len(bars)),
	}
	for i, bar := range bars {
		s.High[i], s.Low[i], s.Close[i] = bar.High, bar.Low, bar.Close
	}
	return s
}

func (s Series) Len() int { return len(s.Close) }
