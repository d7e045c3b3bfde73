// Package deconv implements discrete convolution and FFT based
// deconvolution of intensity vectors.
package deconv

import (
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var ErrShortSignal = errors.New("signal shorter than point spread function")

// eps regularises the denominator so zeros in the point spread
// function's transform do not blow up the quotient.
const eps = 1e-12

// Convolve returns the full discrete convolution of a and b, of length
// len(a)+len(b)-1.
func Convolve(a, b []float64) []float64 {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// Deconvolve recovers x from signal = Convolve(x, psf) by spectral
// division. The returned vector has length len(signal)-len(psf)+1 and
// residual is the pointwise difference between signal and the
// re-convolved recovery, of length len(signal).
func Deconvolve(signal, psf []float64) (x, residual []float64, err error) {
	if len(psf) == 0 {
		return nil, nil, errors.New("empty point spread function")
	}
	if len(signal) < len(psf) {
		return nil, nil, ErrShortSignal
	}

	n := len(signal)
	padded := make([]float64, n)
	copy(padded, psf)

	fft := fourier.NewFFT(n)
	s := fft.Coefficients(nil, signal)
	p := fft.Coefficients(nil, padded)

	q := make([]complex128, len(s))
	for i := range s {
		d := real(p[i])*real(p[i]) + imag(p[i])*imag(p[i]) + eps
		q[i] = s[i] * cmplx.Conj(p[i]) / complex(d, 0)
	}

	y := fft.Sequence(nil, q)
	scale := 1 / float64(n)
	for i := range y {
		y[i] *= scale
	}
	x = y[:n-len(psf)+1]

	re := Convolve(x, psf)
	residual = make([]float64, n)
	for i := range residual {
		residual[i] = signal[i] - re[i]
	}
	return x, residual, nil
}
