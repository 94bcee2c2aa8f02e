package resilience

import "math"

// DampingConfig holds PID gains and the envelope's bounds (spec.md §4.6
// "Damping Stabilizer (PID)").
type DampingConfig struct {
	Kp, Ki, Kd      float64
	IntegralCap     float64
	TSICritical     float64
	MaxOscillation  float64
}

// DefaultDampingConfig returns representative PID gains.
func DefaultDampingConfig() DampingConfig {
	return DampingConfig{
		Kp:             0.60,
		Ki:             0.15,
		Kd:             0.10,
		IntegralCap:    1.0,
		TSICritical:    0.35,
		MaxOscillation: 0.50,
	}
}

// DampingStabilizer tracks the PID controller's running integral and
// last error across cycles, and writes a canary percentage + cooldown
// into the chosen plan's routing patch.
type DampingStabilizer struct {
	cfg        DampingConfig
	integral   float64
	lastError  float64
	haveLast   bool
}

// NewDampingStabilizer builds a stabilizer with the given config.
func NewDampingStabilizer(cfg DampingConfig) *DampingStabilizer {
	return &DampingStabilizer{cfg: cfg}
}

// Step computes one PID cycle given the forecast, target, concentration,
// and oscillation index, and returns the canary percentage plus the
// cooldown seconds to inject into routing_patch.rds.
func (d *DampingStabilizer) Step(forecast, tsiTarget, concentration, oscillation float64, cooldownSeconds int) (canaryPct float64, cooldown int) {
	e := math.Max(0, tsiTarget-forecast)

	d.integral += e
	if d.integral > d.cfg.IntegralCap {
		d.integral = d.cfg.IntegralCap
	}
	if d.integral < -d.cfg.IntegralCap {
		d.integral = -d.cfg.IntegralCap
	}

	derivative := 0.0
	if d.haveLast {
		derivative = e - d.lastError
	}
	d.lastError = e
	d.haveLast = true

	u := d.cfg.Kp*e + d.cfg.Ki*d.integral + d.cfg.Kd*derivative

	pct := 0.15 + clampRange(u, 0, 0.85)
	if forecast < d.cfg.TSICritical || concentration >= 0.75 {
		pct += 0.15
	}
	if oscillation > d.cfg.MaxOscillation {
		pct *= 0.8
	}
	pct = clampRange(pct, 0.15, 1.0)

	return pct, cooldownSeconds
}

// ApplyToPlan injects {canary_pct, cooldown_seconds} into the plan's
// routing_patch.rds, matching the exact field names spec.md §4.6 names.
func ApplyToPlan(plan *RecoveryPlan, canaryPct float64, cooldownSeconds int) {
	if plan.RoutingPatch == nil {
		plan.RoutingPatch = map[string]any{}
	}
	rds, _ := plan.RoutingPatch["rds"].(map[string]any)
	if rds == nil {
		rds = map[string]any{}
	}
	rds["canary_pct"] = canaryPct
	rds["cooldown_seconds"] = cooldownSeconds
	plan.RoutingPatch["rds"] = rds
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
