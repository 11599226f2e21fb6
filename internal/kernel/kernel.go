// Package kernel implements the Muskingum-Cunge reach kernel: a stateless
// function advancing a single channel reach through one routing timestep,
// given its upstream/downstream flow history, lateral inflow, and channel
// geometry.
package kernel

import (
	"fmt"
	"math"

	"router/internal/domain"
	"router/pkg/apperror"
)

// Options bounds the kernel's iterative depth solve.
type Options struct {
	// MaxIterations is the base secant-loop iteration budget before the
	// solver considers expanding its search bracket. Defaults to 100.
	MaxIterations int
	// MinDepth is the minimum depth (m) the secant loop will resolve to,
	// and the floor added to the initial upper bracket. Defaults to 0.01.
	MinDepth float64
}

func (o Options) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return 100
}

func (o Options) minDepth() float64 {
	if o.MinDepth > 0 {
		return o.MinDepth
	}
	return 0.01
}

// Result is the kernel's output for one timestep.
type Result struct {
	Discharge  float64 // qdc, m^3/s
	Velocity   float64 // m/s
	Depth      float64 // m
	Celerity   float64 // ck, kinematic wave celerity
	Courant    float64 // cn = ck * dt / dx
	Weight     float64 // x, the Muskingum weighting parameter at the final iteration
	Converged  bool
	Iterations int
}

// pow23 computes x^(2/3).
func pow23(x float64) float64 {
	return math.Pow(x, 2.0/3.0)
}

// pow53 computes x^(5/3) as x * x^(2/3).
func pow53(x float64) float64 {
	return x * pow23(x)
}

// hydraulics computes flow area, wetted perimeter, and hydraulic radius at
// evaluation depth h, distinguishing in-channel from compound (overbank)
// geometry.
func hydraulics(h, bfd, bw, z, twCC, nCC float64) (area, areaC, wp, wpC, r, twl float64) {
	twl = bw + 2*z*h

	if h > bfd && twCC > 0 && nCC > 0 {
		area = (bw + bfd*z) * bfd
		areaC = twCC * (h - bfd)
		wp = bw + 2*bfd*math.Sqrt(1+z*z)
		wpC = twCC + 2*(h-bfd)
		r = (area + areaC) / (wp + wpC)
		return
	}

	area = (bw + h*z) * h
	wp = bw + 2*h*math.Sqrt(1+z*z)
	if wp > 0 {
		r = area / wp
	}
	return
}

// celerity computes the kinematic wave celerity at evaluation depth h from
// the derivative of Manning's flow with respect to depth, area-weighting
// channel and floodplain contributions when the reach is overbank.
func celerity(h, bfd, area, areaC, r, bw, z, twCC, nCC, n, so float64) float64 {
	switch {
	case h > bfd && twCC > 0 && nCC > 0:
		channel := (math.Sqrt(so) / n) * ((5.0/3.0)*pow23(r) - (2.0/3.0)*pow53(r)*(2*math.Sqrt(1+z*z)/(bw+2*bfd*z)))
		floodplain := (math.Sqrt(so) / nCC) * (5.0 / 3.0) * math.Pow(h-bfd, 2.0/3.0)
		return math.Max(0, (channel*area+floodplain*areaC)/(area+areaC))
	case h > 0:
		return math.Max(0, (math.Sqrt(so)/n)*((5.0/3.0)*pow23(r)-(2.0/3.0)*pow53(r)*(2*math.Sqrt(1+z*z)/(bw+2*h*z))))
	default:
		return 0
	}
}

// Advance drives a reach through one routing timestep. qup/quc are the
// upstream discharge at the previous/current step, qdp the reach's own
// discharge at the previous step, ql the lateral inflow (m^3/s), dt the
// routing period (s), and depthPrev the reach's depth at the previous step.
func Advance(qup, quc, qdp, ql, dt float64, geom domain.ChannelGeometry, depthPrev float64, opts Options) (Result, error) {
	n := geom.Manning
	nCC := geom.ManningCC
	so := geom.Slope
	bw := geom.BottomWidth
	tw := geom.TopWidth
	twCC := geom.TopWidthCC
	cs := geom.SideSlope
	dx := geom.LengthM

	z := 1.0
	if cs != 0 {
		z = 1.0 / cs
	}

	if n <= 0 || so <= 0 || z <= 0 || bw <= 0 {
		return Result{}, apperror.New(apperror.CodeInvalidGeometry,
			fmt.Sprintf("invalid channel coefficients: n=%v so=%v z=%v bw=%v", n, so, z, bw))
	}

	var bfd float64
	switch {
	case bw > tw:
		bfd = bw / 1e-5
	case bw == tw:
		bfd = bw / (2 * z)
	default:
		bfd = (tw - bw) / (2 * z)
	}

	minDepth := opts.minDepth()
	maxIter := opts.maxIterations()

	depthC := math.Max(depthPrev, 0)
	h := depthC*1.33 + minDepth
	h0 := depthC * 0.67

	var qdc, velc, ck, cn, x float64
	converged := true
	totalIterations := 0

	if ql > 0 || qup > 0 || quc > 0 || qdp > 0 {
		var c1, c2, c3, c4, qj0, qj float64
		tries := 0

		for {
			iter := 0
			rerror := 1.0
			aerror := 0.01

			for rerror > 0.01 && aerror >= minDepth && iter <= maxIter {
				// Lower bracket (h0): x is weighted by the previous residual qj0.
				area0, areaC0, wp0, wpC0, r0, twl0 := hydraulics(h0, bfd, bw, z, twCC, nCC)
				ck = celerity(h0, bfd, area0, areaC0, r0, bw, z, twCC, nCC, n, so)

				km := dt
				if ck > 0 {
					km = math.Max(dt, dx/ck)
				}

				switch {
				case h0 > bfd && twCC > 0 && nCC > 0 && ck > 0:
					x = math.Min(0.5, math.Max(0.0, 0.5*(1-(qj0/(2*twCC*so*ck*dx)))))
				case ck > 0:
					x = math.Min(0.5, math.Max(0.0, 0.5*(1-(qj0/(2*twl0*so*ck*dx)))))
				default:
					x = 0.5
				}

				d := km*(1-x) + dt/2
				if d == 0 {
					return Result{}, apperror.New(apperror.CodeCourantViolation, "muskingum-cunge: d is zero, routing coefficients undefined")
				}

				c1 = (km*x + dt/2) / d
				c2 = (dt/2 - km*x) / d
				c3 = (km*(1-x) - dt/2) / d
				c4 = (ql * dt) / d

				if wp0+wpC0 > 0 {
					manningAvg := ((wp0 * n) + (wpC0 * nCC)) / (wp0 + wpC0)
					qj0 = (c1*qup + c2*quc + c3*qdp + c4) - ((1 / manningAvg) * (area0 + areaC0) * pow23(r0) * math.Sqrt(so))
				}

				// Upper bracket (h): x is weighted by the flow_sum from the
				// h0 iteration's C1..C4, narrower clamp [0.25, 0.5].
				area1, areaC1, wp1, wpC1, r1, twl1 := hydraulics(h, bfd, bw, z, twCC, nCC)
				ck = celerity(h, bfd, area1, areaC1, r1, bw, z, twCC, nCC, n, so)

				km = dt
				if ck > 0 {
					km = math.Max(dt, dx/ck)
				}

				flowSum := c1*qup + c2*quc + c3*qdp + c4

				switch {
				case h > bfd && twCC > 0 && nCC > 0 && ck > 0:
					x = math.Min(0.5, math.Max(0.25, 0.5*(1-(flowSum/(2*twCC*so*ck*dx)))))
				case ck > 0:
					x = math.Min(0.5, math.Max(0.25, 0.5*(1-(flowSum/(2*twl1*so*ck*dx)))))
				default:
					x = 0.5
				}

				d = km*(1-x) + dt/2
				if d == 0 {
					return Result{}, apperror.New(apperror.CodeCourantViolation, "muskingum-cunge: d is zero, routing coefficients undefined")
				}

				c1 = (km*x + dt/2) / d
				c2 = (dt/2 - km*x) / d
				c3 = (km*(1-x) - dt/2) / d
				c4 = (ql * dt) / d

				// Channel-loss guard: lateral abstraction cannot exceed the
				// routed inflow.
				if c4 < 0 && math.Abs(c4) > (c1*qup+c2*quc+c3*qdp) {
					c4 = -(c1*qup + c2*quc + c3*qdp)
				}

				if wp1+wpC1 > 0 {
					manningAvg := ((wp1 * n) + (wpC1 * nCC)) / (wp1 + wpC1)
					qj = (c1*qup + c2*quc + c3*qdp + c4) - ((1 / manningAvg) * (area1 + areaC1) * pow23(r1) * math.Sqrt(so))
				}

				var h1 float64
				if qj0-qj != 0 {
					h1 = h - (qj * (h0 - h) / (qj0 - qj))
					if h1 < 0 {
						h1 = h
					}
				} else {
					h1 = h
				}

				if h > 0 {
					rerror = math.Abs((h1 - h) / h)
					aerror = math.Abs(h1 - h)
				} else {
					rerror = 0
					aerror = 0.9
				}

				h0 = math.Max(0, h)
				h = math.Max(0, h1)
				iter++
				totalIterations++

				if h < minDepth {
					break
				}
			}

			if iter >= maxIter {
				tries++
				if tries <= 4 {
					h *= 1.33
					h0 *= 0.67
					maxIter += 25
					continue
				}
				converged = false
			}

			flowSum := c1*qup + c2*quc + c3*qdp + c4
			switch {
			case flowSum < 0 && c4 < 0 && math.Abs(c4) > (c1*qup+c2*quc+c3*qdp):
				qdc = 0
			case flowSum < 0:
				qdc = math.Max(c1*qup+c2*quc+c4, c1*qup+c3*qdp+c4)
			default:
				qdc = flowSum
			}

			twl := bw + 2*z*h
			r := (h * (bw + twl) / 2) / (bw + 2*math.Sqrt(math.Pow((twl-bw)/2, 2)+h*h))
			velc = (1 / n) * pow23(r) * math.Sqrt(so)
			depthC = h

			break
		}
	} else {
		qdc, velc, depthC = 0, 0, 0
	}

	// Courant number, computed for diagnostic use from the final depth
	// regardless of which branch produced it; this also becomes the
	// returned celerity.
	if depthC > 0 {
		hGtBF := math.Max(depthC-bfd, 0)
		hLtBF := math.Min(bfd, depthC)

		if hGtBF > 0 && twCC <= 0 {
			hGtBF, hLtBF = 0, depthC
		}

		area := (bw + hLtBF*z) * hLtBF
		wp := bw + 2*hLtBF*math.Sqrt(1+z*z)
		areaC := twCC * hGtBF
		var wpC float64
		if hGtBF > 0 {
			wpC = twCC + 2*hGtBF
		}
		r := (area + areaC) / (wp + wpC)

		channel := (math.Sqrt(so) / n) * ((5.0/3.0)*pow23(r) - (2.0/3.0)*pow53(r)*(2*math.Sqrt(1+z*z)/(bw+2*hLtBF*z)))
		floodplain := (math.Sqrt(so) / nCC) * (5.0 / 3.0) * math.Pow(hGtBF, 2.0/3.0)
		ck = math.Max(0, (channel*area+floodplain*areaC)/(area+areaC))
		cn = ck * (dt / dx)
	}

	return Result{
		Discharge:  qdc,
		Velocity:   velc,
		Depth:      depthC,
		Celerity:   ck,
		Courant:    cn,
		Weight:     x,
		Converged:  converged,
		Iterations: totalIterations,
	}, nil
}
