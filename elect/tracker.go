package elect

// Tracker is the narrow counter-reporting sink LeaderElector optionally
// reports to (stats.Collector satisfies this structurally). Nil by default -
// a Loop not wired to a Tracker simply counts nothing.
type Tracker interface {
	Inc(name string)
	IncErr(name string)
}

const (
	metricElectionsWon  = "elections_won"
	metricElectionsLost = "elections_lost"
)

// SetTracker wires t to be notified of election outcomes from this point on.
func (e *LeaderElector) SetTracker(t Tracker) { e.tracker = t }

func (e *LeaderElector) incWon() {
	if e.tracker != nil {
		e.tracker.Inc(metricElectionsWon)
	}
}

func (e *LeaderElector) incLost() {
	if e.tracker != nil {
		e.tracker.Inc(metricElectionsLost)
	}
}
