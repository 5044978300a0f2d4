package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	QuotesReceived     Counter
	SpreadEvaluations  Counter
	IntentsOpen        Counter
	IntentsAdd         Counter
	IntentsClose       Counter
	OrdersPlaced       Counter
	OrdersFailed       Counter
	SubmissionTimeouts Counter
	Halts              Counter
	CurrentSpread      Gauge
	DailyLoss          Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		QuotesReceived:     c,
		SpreadEvaluations:  c,
		IntentsOpen:        c,
		IntentsAdd:         c,
		IntentsClose:       c,
		OrdersPlaced:       c,
		OrdersFailed:       c,
		SubmissionTimeouts: c,
		Halts:              c,
		CurrentSpread:      g,
		DailyLoss:          g,
	}
}
