package ports

// Metrics records authentication outcomes.
type Metrics interface {
	NonceIssued()
	LoginAttempt(outcome string)
	TokenValidation(outcome string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) NonceIssued()           {}
func (NopMetrics) LoginAttempt(string)    {}
func (NopMetrics) TokenValidation(string) {}
