package pusher

// Dormand-Prince 5(4) coefficients.
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// state is the 6-component phase-space vector (x, y, z, vx, vy, vz).
type state [6]float64

func (s state) finite() bool {
	for _, v := range s {
		if v != v || v > maxFinite || v < -maxFinite {
			return false
		}
	}
	return true
}

const maxFinite = 1.7976931348623157e308

// stages evaluates the seven Dormand-Prince stages and returns the
// fifth-order solution, the embedded error vector scaled by h, and the
// first-stage derivative (FSAL is not exploited; the last stage is
// evaluated at the new solution purely for the error estimate).
func stages(f func(s state, t float64) (state, error), x state, t, h float64) (xNew, errVec, k1 state, err error) {
	k1, err = f(x, t)
	if err != nil {
		return
	}

	var xs state
	for i := 0; i < 6; i++ {
		xs[i] = x[i] + h*b21*k1[i]
	}
	k2, err := f(xs, t+a2*h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		xs[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	k3, err := f(xs, t+a3*h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		xs[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := f(xs, t+a4*h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		xs[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := f(xs, t+a5*h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		xs[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := f(xs, t+h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}
	k7, err := f(xNew, t+h)
	if err != nil {
		return
	}

	for i := 0; i < 6; i++ {
		errVec[i] = h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
	}
	return xNew, errVec, k1, nil
}
