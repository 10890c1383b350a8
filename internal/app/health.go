package app

import (
	"context"
	"time"
)

type ServiceHealth struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

type HealthReport struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

type healthChecker struct {
	checks []healthCheck
}

func newHealthChecker(cfg Config, clients Clients) *healthChecker {
	hc := &healthChecker{}

	hc.add("pinecone", func(ctx context.Context) error {
		_, err := clients.PineconeAPI.DescribeIndex(ctx, cfg.PineconeIndex)
		return err
	})
	if clients.Keyword != nil {
		hc.add("elasticsearch", clients.Keyword.Ping)
	} else {
		hc.absent("elasticsearch", "keyword index not configured or unreachable")
	}
	if clients.Producer != nil {
		hc.add("kafka", clients.Producer.Ping)
	} else {
		hc.absent("kafka", "durable log not reachable; running inline")
	}
	if clients.Archive != nil {
		hc.add("postgres", clients.Archive.Ping)
	}

	return hc
}

func (hc *healthChecker) add(name string, check func(ctx context.Context) error) {
	hc.checks = append(hc.checks, healthCheck{name: name, check: check})
}

func (hc *healthChecker) absent(name, reason string) {
	hc.add(name, func(context.Context) error { return errAbsent(reason) })
}

type errAbsent string

func (e errAbsent) Error() string { return string(e) }

// Report probes every service. Overall status is healthy iff every service
// is healthy, else degraded.
func (hc *healthChecker) Report(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]ServiceHealth, len(hc.checks)),
	}
	for _, c := range hc.checks {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err := c.check(probeCtx)
		cancel()
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			report.Status = "degraded"
			sh := ServiceHealth{Status: "unhealthy", Message: err.Error()}
			if _, absent := err.(errAbsent); absent {
				sh.Status = "unavailable"
			} else {
				sh.ResponseTimeMs = &elapsed
			}
			report.Services[c.name] = sh
			continue
		}
		report.Services[c.name] = ServiceHealth{Status: "healthy", ResponseTimeMs: &elapsed}
	}
	return report
}
