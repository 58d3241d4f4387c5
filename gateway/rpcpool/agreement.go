package rpcpool

// AgreementStrategy names a broadcast agreement policy
type AgreementStrategy string

const (
	// AgreementNone reports every result and decides nothing
	AgreementNone AgreementStrategy = "none"

	// AgreementLast picks the last endpoint in pool order
	AgreementLast AgreementStrategy = "last"
)

// NewAgreementPolicy returns the policy for name, defaulting to none
func NewAgreementPolicy(name string) AgreementPolicy {
	switch AgreementStrategy(name) {
	case AgreementLast:
		return lastResult{}
	default:
		return noAgreement{}
	}
}

type noAgreement struct{}

func (noAgreement) Name() string { return string(AgreementNone) }

func (noAgreement) Decide([]EndpointResult) *EndpointResult { return nil }

type lastResult struct{}

func (lastResult) Name() string { return string(AgreementLast) }

func (lastResult) Decide(results []EndpointResult) *EndpointResult {
	if len(results) == 0 {
		return nil
	}
	decided := results[len(results)-1]
	return &decided
}
