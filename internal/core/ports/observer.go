package ports

// StepPhase is the phase of a reported step.
type StepPhase string

const (
	// PhaseStart marks the beginning of a step.
	PhaseStart StepPhase = "start"
	// PhaseEnd marks the successful end of a step.
	PhaseEnd StepPhase = "end"
	// PhaseError marks the failed end of a step.
	PhaseError StepPhase = "error"
)

// StepObserver receives progress notifications from the builders and the reifier.
//
//go:generate mockgen -source=observer.go -destination=mocks/mock_observer.go -package=mocks
type StepObserver interface {
	OnStep(name string, phase StepPhase)
}

// NoopObserver discards all notifications.
type NoopObserver struct{}

// OnStep does nothing.
func (NoopObserver) OnStep(string, StepPhase) {}
