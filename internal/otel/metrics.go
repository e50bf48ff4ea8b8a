package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all shell metrics instruments.
type Metrics struct {
	SpawnsTotal    metric.Int64Counter
	SpawnErrors    metric.Int64Counter
	ChildCrashes   metric.Int64Counter
	ChildLifetime  metric.Float64Histogram
	ChildActive    metric.Int64UpDownCounter
	AttachRetries  metric.Int64Counter
	AttachFailures metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SpawnsTotal, err = meter.Int64Counter("clawshell.child.spawns",
		metric.WithDescription("Gateway child spawn count"),
	)
	if err != nil {
		return nil, err
	}

	m.SpawnErrors, err = meter.Int64Counter("clawshell.child.spawn_errors",
		metric.WithDescription("Gateway child spawn failures"),
	)
	if err != nil {
		return nil, err
	}

	m.ChildCrashes, err = meter.Int64Counter("clawshell.child.crashes",
		metric.WithDescription("Gateway child abnormal exits"),
	)
	if err != nil {
		return nil, err
	}

	m.ChildLifetime, err = meter.Float64Histogram("clawshell.child.lifetime",
		metric.WithDescription("Gateway child lifetime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ChildActive, err = meter.Int64UpDownCounter("clawshell.child.active",
		metric.WithDescription("Number of live gateway children (0 or 1)"),
	)
	if err != nil {
		return nil, err
	}

	m.AttachRetries, err = meter.Int64Counter("clawshell.attach.retries",
		metric.WithDescription("Control UI attach retry count"),
	)
	if err != nil {
		return nil, err
	}

	m.AttachFailures, err = meter.Int64Counter("clawshell.attach.failures",
		metric.WithDescription("Terminal control UI attach failures"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
