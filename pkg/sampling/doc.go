// Package sampling reduces noisy per-frame measurements to a smoothed scalar.
//
// Scalar signals (a head pitch angle) go straight through a Smoother.
// Two-dimensional colour fields (a camera frame) are first reduced to a
// mean relative luminance over a cached foveated point set, then smoothed.
package sampling
