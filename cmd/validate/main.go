// Command validate runs the site request fixtures through the estimation
// domain with a fixed clock and checks curve numbers, runoff depths,
// comparisons, serialization, and SCS invariants against expectations.
//
// Usage:
//
//	go run ./cmd/validate -fixtures data/mock/site_requests.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/mockdata"
	"github.com/jonboulle/clockwork"
)

var fixedNow = time.Date(2024, time.September, 22, 6, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// outcome is one fixture's estimation result.
type outcome struct {
	tc  mockdata.Case
	req domain.SiteRequest
	est domain.SiteEstimate
	err error
}

func main() {
	fixtures := flag.String("fixtures", mockdata.DefaultPath, "path to site request fixtures")
	flag.Parse()

	os.Exit(run(*fixtures, os.Stdout))
}

func run(fixturesPath string, out io.Writer) int {
	// Fixed clock for reproducible processed_at and forecast windows.
	domain.SetClock(clockwork.NewFakeClockAt(fixedNow))
	defer domain.SetClock(nil)

	fmt.Fprintln(out, "=== Runoff Fixture Validation ===")
	fmt.Fprintln(out)

	cases, err := mockdata.Load(fixturesPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	outcomes, parsePhase := estimateAll(cases)
	phases := []*phase{
		parsePhase,
		validateExpectations(outcomes),
		validateSerialization(outcomes),
		validateDeterminism(outcomes),
		validateInvariants(outcomes),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Fixtures: %d\n", len(cases))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// estimateAll parses every fixture and estimates it from its own
// precipitation sample. Fixtures must not depend on remote providers.
func estimateAll(cases []mockdata.Case) ([]outcome, *phase) {
	p := &phase{name: "Fixture requests parse"}
	outcomes := make([]outcome, 0, len(cases))
	for _, tc := range cases {
		req, err := tc.SiteRequest()
		if err != nil {
			p.errorf("%s: %v", tc.Name, err)
			continue
		}
		if req.Precipitation == nil {
			p.errorf("%s: fixture must carry a precipitation sample", tc.Name)
			continue
		}
		sample := *req.Precipitation
		sample.Source = "request"
		est, err := domain.BuildSiteEstimate(req, sample, domain.BasisTotal)
		outcomes = append(outcomes, outcome{tc: tc, req: req, est: est, err: err})
	}
	return outcomes, p
}

func validateExpectations(outcomes []outcome) *phase {
	p := &phase{name: "Curve numbers and runoff match"}
	for _, o := range outcomes {
		for _, problem := range o.tc.Expected.Check(o.est, o.err) {
			p.errorf("%s: %s", o.tc.Name, problem)
		}
	}
	return p
}

func validateSerialization(outcomes []outcome) *phase {
	p := &phase{name: "Serialized estimates round-trip"}
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		msg, err := domain.SerializeSiteEstimate(o.est)
		if err != nil {
			p.errorf("%s: %v", o.tc.Name, err)
			continue
		}
		if string(msg.Key) != o.est.ID {
			p.errorf("%s: key %q != id %q", o.tc.Name, msg.Key, o.est.ID)
		}
		if msg.Headers["site_id"] != o.est.SiteID || msg.Headers["mode"] != o.est.Mode {
			p.errorf("%s: headers %v do not match estimate", o.tc.Name, msg.Headers)
		}
		if ts := msg.Headers["processed_at"]; ts != fixedNow.Format(time.RFC3339) {
			p.errorf("%s: processed_at header %q, want %q", o.tc.Name, ts, fixedNow.Format(time.RFC3339))
		}

		var back domain.SiteEstimate
		if err := json.Unmarshal(msg.Value, &back); err != nil {
			p.errorf("%s: unmarshal: %v", o.tc.Name, err)
			continue
		}
		if back.Runoff != o.est.Runoff {
			p.errorf("%s: runoff changed in round-trip: %+v -> %+v", o.tc.Name, o.est.Runoff, back.Runoff)
		}
		if (back.Factors.SoilTextureCode == nil) != (o.est.Factors.SoilTextureCode == nil) ||
			(back.Factors.NDVI == nil) != (o.est.Factors.NDVI == nil) {
			p.errorf("%s: missing/present factors changed in round-trip", o.tc.Name)
		}
	}
	return p
}

func validateDeterminism(outcomes []outcome) *phase {
	p := &phase{name: "Estimate IDs are deterministic and unique"}
	seen := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		sample := *o.req.Precipitation
		again, err := domain.BuildSiteEstimate(o.req, sample, domain.BasisTotal)
		if err != nil {
			p.errorf("%s: re-estimate: %v", o.tc.Name, err)
			continue
		}
		if again.ID != o.est.ID {
			p.errorf("%s: id changed between runs: %s vs %s", o.tc.Name, o.est.ID, again.ID)
		}
		if prev, dup := seen[o.est.ID]; dup {
			p.errorf("%s: id %s already used by %s", o.tc.Name, o.est.ID, prev)
		}
		seen[o.est.ID] = o.tc.Name
	}
	return p
}

// validateInvariants sweeps precipitation for each fixture's curve number and
// checks the SCS properties: non-negative, bounded by P, monotone in P, and
// zero at the initial abstraction.
func validateInvariants(outcomes []outcome) *phase {
	p := &phase{name: "SCS invariants hold"}
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		cn := o.est.Runoff.CurveNumber
		ia, err := domain.InitialAbstraction(cn)
		if err != nil {
			p.errorf("%s: %v", o.tc.Name, err)
			continue
		}
		if q, _ := domain.CalculateRunoff(ia, cn); q != 0 {
			p.errorf("%s: Q(Ia=%.4f) = %g, want 0", o.tc.Name, ia, q)
		}

		prev := 0.0
		for precip := 0.0; precip <= 500; precip += 2.5 {
			q, err := domain.CalculateRunoff(precip, cn)
			if err != nil {
				p.errorf("%s: P=%.1f: %v", o.tc.Name, precip, err)
				break
			}
			if q < 0 || q > precip+1e-9 {
				p.errorf("%s: P=%.1f CN=%g: Q=%g out of [0, P]", o.tc.Name, precip, cn, q)
			}
			if q+1e-9 < prev {
				p.errorf("%s: Q decreased at P=%.1f (%g < %g)", o.tc.Name, precip, q, prev)
			}
			prev = math.Max(prev, q)
		}
	}
	return p
}
